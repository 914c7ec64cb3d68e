package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-authgate/order-console/session"
)

func TestLinePrompt_Answers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantTok  string
		wantErr  error
		renewals int
	}{
		{name: "default extends", input: "\n", wantTok: "t1", renewals: 1},
		{name: "yes extends", input: "yes\n", wantTok: "t1", renewals: 1},
		{name: "no declines", input: "n\n", wantErr: session.ErrRecoveryDeclined},
		{name: "end of input declines", input: "", wantErr: session.ErrRecoveryDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renewals := 0
			var out bytes.Buffer
			p := NewLinePrompt(func(context.Context) (string, error) {
				renewals++
				return "t1", nil
			}, strings.NewReader(tt.input), &out)

			token, err := p.Recover(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Recover() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Recover() unexpected error = %v", err)
			}
			if token != tt.wantTok {
				t.Errorf("Recover() token = %q, want %q", token, tt.wantTok)
			}
			if renewals != tt.renewals {
				t.Errorf("Expected %d renewals, got %d", tt.renewals, renewals)
			}
			if !strings.Contains(out.String(), "Extend it? [Y/n]") {
				t.Errorf("Expected the question to be printed, got %q", out.String())
			}
		})
	}
}

func TestLinePrompt_SequentialPrompts(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompt(func(context.Context) (string, error) {
		return "t", nil
	}, strings.NewReader("y\nn\n"), &out)

	if _, err := p.Recover(context.Background()); err != nil {
		t.Fatalf("First Recover() error = %v", err)
	}
	if _, err := p.Recover(context.Background()); !errors.Is(err, session.ErrRecoveryDeclined) {
		t.Fatalf("Second Recover() error = %v, want ErrRecoveryDeclined", err)
	}
}

func TestLinePrompt_ContextCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	p := NewLinePrompt(func(context.Context) (string, error) {
		return "t", nil
	}, r, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Recover(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}
