// Package messages holds the user-facing push notification texts. They live
// in a JSON file so copy changes do not require a rebuild.
package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Messages struct {
	SyncComplete        MessageText `json:"sync_complete"`
	ReconnectionNeeded  MessageText `json:"reconnection_needed"`
	ConnectionDisabled  MessageText `json:"connection_disabled"`
	IdentityRepaired    MessageText `json:"identity_repaired"`
	NewRecurringPayment MessageText `json:"new_recurring_payment"`
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notifications JSON file and caches the result.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}

// Default returns the built-in texts, used when no messages file is
// configured.
func Default() *Messages {
	return &Messages{
		SyncComplete: MessageText{
			Title: "Accounts updated",
			Body:  "Your linked accounts have finished syncing.",
		},
		ReconnectionNeeded: MessageText{
			Title: "Reconnection needed",
			Body:  "One of your institutions needs to be reconnected to keep syncing.",
		},
		ConnectionDisabled: MessageText{
			Title: "Connection disabled",
			Body:  "An institution connection was disabled by its provider.",
		},
		IdentityRepaired: MessageText{
			Title: "Brokerage link restored",
			Body:  "We restored your brokerage registration. Your accounts will refresh shortly.",
		},
		NewRecurringPayment: MessageText{
			Title: "New recurring payment found",
			Body:  "We spotted a new recurring payment in your transactions.",
		},
	}
}
