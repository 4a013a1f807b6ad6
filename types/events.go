package types

import "time"

// CompletedAction records one finished app call as seen by the environment.
// Instrumented tools and scripted environment events both produce them; the
// notification router classifies them into queued messages.
type CompletedAction struct {
	ID          string         `json:"id"`
	App         string         `json:"app"`
	Function    string         `json:"function"`
	Args        map[string]any `json:"args,omitempty"`
	Output      any            `json:"output,omitempty"`
	Err         string         `json:"error,omitempty"`
	Time        time.Time      `json:"time"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

func (a CompletedAction) Failed() bool { return a.Err != "" }

func (a CompletedAction) FullName() string {
	if a.App == "" {
		return a.Function
	}
	return a.App + AppSeparator + a.Function
}
