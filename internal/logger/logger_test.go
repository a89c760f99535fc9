package logger

import (
	"os"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if Logger == nil {
		t.Fatal("expected Logger to be initialized")
	}
	if Logger.Out != os.Stdout {
		t.Error("expected Logger output to be os.Stdout")
	}
}

func TestWithComponent(t *testing.T) {
	entry := WithComponent("gateway")
	if entry == nil {
		t.Fatal("expected non-nil entry")
	}
	if val, ok := entry.Data["component"]; !ok {
		t.Error("expected component field to be set")
	} else if val != "gateway" {
		t.Errorf("expected component 'gateway', got '%v'", val)
	}
}

func TestWithComponentDistinctEntries(t *testing.T) {
	a := WithComponent("engine")
	b := WithComponent("sync")
	if a.Data["component"] == b.Data["component"] {
		t.Error("expected different component values for different entries")
	}
}
