package sheets

import (
	"context"
	"fmt"
	"time"

	"dinnerhop-bot/internal/journal"
)

const SheetJournal = "Journal"

// Record appends one row per entry:
// at | chat | kind | registration | event | provider | outcome | detail
func (c *Client) Record(ctx context.Context, e journal.Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err := c.appendRow(ctx, SheetJournal, []interface{}{
		at.UTC().Format(time.RFC3339),
		e.ChatID,
		string(e.Kind),
		e.RegistrationID,
		e.EventID,
		e.Provider,
		e.Outcome,
		e.Detail,
	})
	if err != nil {
		return fmt.Errorf("append journal row: %w", err)
	}
	return nil
}
