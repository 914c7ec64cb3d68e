package tui

import (
	"context"
	"errors"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/go-authgate/order-console/session"
)

func press(m Model, key tea.KeyPressMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

func TestModel_LogoutDeclines(t *testing.T) {
	tests := []struct {
		name string
		keys []tea.KeyPressMsg
	}{
		{name: "n", keys: []tea.KeyPressMsg{{Code: 'n', Text: "n"}}},
		{name: "esc", keys: []tea.KeyPressMsg{{Code: tea.KeyEscape}}},
		{name: "ctrl+c", keys: []tea.KeyPressMsg{{Code: 'c', Mod: tea.ModCtrl}}},
		{name: "focus logout then enter", keys: []tea.KeyPressMsg{{Code: tea.KeyLeft}, {Code: tea.KeyEnter}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renewed := false
			m := NewModel(context.Background(), func(context.Context) (string, error) {
				renewed = true
				return "token", nil
			})

			var cmd tea.Cmd
			for _, k := range tt.keys {
				m, cmd = press(m, k)
			}
			if cmd == nil {
				t.Fatal("Expected the dialog to quit")
			}
			if _, err := m.Result(); !errors.Is(err, session.ErrRecoveryDeclined) {
				t.Errorf("Expected ErrRecoveryDeclined, got %v", err)
			}
			if renewed {
				t.Errorf("Logout must not renew the session")
			}
		})
	}
}

func TestModel_ExtendRenews(t *testing.T) {
	m := NewModel(context.Background(), func(context.Context) (string, error) {
		return "fresh-token", nil
	})

	m, cmd := press(m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.state != stateRenewing {
		t.Fatalf("Expected renewing state, got %v", m.state)
	}
	if cmd == nil {
		t.Fatal("Expected a renewal command")
	}

	// Keys are ignored while renewing.
	m, _ = press(m, tea.KeyPressMsg{Code: 'n', Text: "n"})
	if m.state != stateRenewing {
		t.Fatalf("Expected key to be ignored while renewing, got %v", m.state)
	}

	msg := m.renewCmd()()
	next, quit := m.Update(msg)
	m = next.(Model)
	if quit == nil {
		t.Errorf("Expected the dialog to quit after renewal")
	}
	token, err := m.Result()
	if err != nil || token != "fresh-token" {
		t.Errorf("Result() = %q, %v", token, err)
	}
}

func TestModel_RenewFailure(t *testing.T) {
	failure := errors.New("refresh rejected")
	m := NewModel(context.Background(), func(context.Context) (string, error) {
		return "", failure
	})

	m, _ = press(m, tea.KeyPressMsg{Code: 'y', Text: "y"})
	next, _ := m.Update(m.renewCmd()())
	m = next.(Model)

	if _, err := m.Result(); !errors.Is(err, failure) {
		t.Errorf("Expected the renewal error, got %v", err)
	}
}

func TestModel_FocusToggle(t *testing.T) {
	m := NewModel(context.Background(), nil)
	if m.focus != choiceExtend {
		t.Fatalf("Expected Extend to be focused first")
	}
	m, _ = press(m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.focus != choiceLogout {
		t.Errorf("Expected tab to move focus to Logout")
	}
	m, _ = press(m, tea.KeyPressMsg{Code: tea.KeyRight})
	if m.focus != choiceExtend {
		t.Errorf("Expected right to move focus back to Extend")
	}
}
