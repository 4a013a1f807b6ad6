package agent

import (
	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/model"
)

// roleFor is the fixed step-type to chat-role table. Entries absent here
// (and entries whose ContentForModel returns false) never reach the model.
var roleFor = map[logbook.EntryType]model.Role{
	logbook.TypeSystemPrompt: model.RoleSystem,
	logbook.TypeTask:         model.RoleUser,
	logbook.TypeNotification: model.RoleUser,
	logbook.TypeObservation:  model.RoleUser,
	logbook.TypeError:        model.RoleUser,
	logbook.TypeOutput:       model.RoleAssistant,
	logbook.TypeFinalAnswer:  model.RoleAssistant,
}

// BuildMessages projects the log onto the model's chat format in insertion
// order. obsTokenLimit > 0 applies head+tail truncation to observation
// contents, the recovery path after a prompt-too-long failure.
func BuildMessages(entries []logbook.Entry, obsTokenLimit int) []model.Message {
	out := make([]model.Message, 0, len(entries))
	for _, e := range entries {
		role, ok := roleFor[e.Type()]
		if !ok {
			continue
		}
		content, ok := e.ContentForModel()
		if !ok {
			continue
		}
		if obsTokenLimit > 0 && e.Type() == logbook.TypeObservation {
			content = TruncateMiddle(content, obsTokenLimit)
		}
		out = append(out, model.Message{
			Role:        role,
			Content:     content,
			Attachments: e.AttachmentsForModel(),
		})
	}
	return out
}
