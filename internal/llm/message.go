package llm

import (
	"encoding/json"
	"strings"
)

// ContentKind tags the shape a backend used for the assistant message.
// Providers disagree here: some return a plain string, some a content-part
// list, and some route structured output through tool/function calls with an
// empty content field.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentString
	ContentParts
	ContentObject
	ContentToolCall
	ContentFunctionCall
)

// MessageContent is the assistant message decoded into a tagged variant.
type MessageContent struct {
	kind ContentKind
	text string
}

// TextContent builds a MessageContent carrying plain text, as if the backend
// had returned a string content field.
func TextContent(text string) MessageContent {
	if strings.TrimSpace(text) == "" {
		return MessageContent{}
	}
	return MessageContent{kind: ContentString, text: text}
}

// Kind reports which response shape carried the text.
func (m MessageContent) Kind() ContentKind { return m.kind }

// Text returns the extracted message text, "" when every shape came up empty.
func (m MessageContent) Text() string { return m.text }

type wireMessage struct {
	Content   json.RawMessage `json:"content"`
	ToolCalls []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
	FunctionCall *struct {
		Arguments string `json:"arguments"`
	} `json:"function_call"`
}

type wirePart struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// UnmarshalJSON resolves the message shapes exhaustively, in order: plain
// string content, content-part list, {text: ...} object, tool-call
// arguments, legacy function-call arguments.
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	if len(wire.Content) > 0 && string(wire.Content) != "null" {
		var s string
		if err := json.Unmarshal(wire.Content, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				*m = MessageContent{kind: ContentString, text: s}
				return nil
			}
		} else if text, ok := partsText(wire.Content); ok {
			if strings.TrimSpace(text) != "" {
				*m = MessageContent{kind: ContentParts, text: text}
				return nil
			}
		} else if text, ok := objectText(wire.Content); ok {
			if strings.TrimSpace(text) != "" {
				*m = MessageContent{kind: ContentObject, text: text}
				return nil
			}
		}
	}

	if len(wire.ToolCalls) > 0 {
		if args := strings.TrimSpace(wire.ToolCalls[0].Function.Arguments); args != "" {
			*m = MessageContent{kind: ContentToolCall, text: wire.ToolCalls[0].Function.Arguments}
			return nil
		}
	}
	if wire.FunctionCall != nil {
		if args := strings.TrimSpace(wire.FunctionCall.Arguments); args != "" {
			*m = MessageContent{kind: ContentFunctionCall, text: wire.FunctionCall.Arguments}
			return nil
		}
	}

	*m = MessageContent{kind: ContentEmpty}
	return nil
}

func partsText(raw json.RawMessage) (string, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", false
	}
	var collected []string
	for _, p := range parts {
		var s string
		if err := json.Unmarshal(p, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				collected = append(collected, s)
			}
			continue
		}
		var obj wirePart
		if err := json.Unmarshal(p, &obj); err == nil {
			if strings.TrimSpace(obj.Text) != "" {
				collected = append(collected, obj.Text)
			} else if strings.TrimSpace(obj.Content) != "" {
				collected = append(collected, obj.Content)
			}
		}
	}
	return strings.Join(collected, "\n"), true
}

func objectText(raw json.RawMessage) (string, bool) {
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Text == nil {
		return "", false
	}
	return *obj.Text, true
}
