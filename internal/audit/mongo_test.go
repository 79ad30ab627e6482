package audit

import (
	"context"
	"testing"
	"time"
)

func TestNewMongoSinkUnreachableHostFails(t *testing.T) {
	startTime := time.Now()
	sink, err := NewMongoSink("mongodb://192.0.2.1:27017/?connectTimeoutMS=2000&serverSelectionTimeoutMS=2000", "audit")
	elapsed := time.Since(startTime)

	if err == nil {
		if sink != nil {
			sink.Close(context.Background())
		}
		t.Fatal("expected a connection error for an unreachable host, got nil")
	}
	if sink != nil {
		t.Error("expected a nil sink on connection failure")
	}
	if elapsed > 20*time.Second {
		t.Errorf("connection attempt took too long: %v (expected < 20s)", elapsed)
	}
}

func TestNewMongoSinkInvalidURIFails(t *testing.T) {
	sink, err := NewMongoSink("not-a-mongo-uri", "audit")
	if err == nil {
		if sink != nil {
			sink.Close(context.Background())
		}
		t.Fatal("expected an error for a malformed URI, got nil")
	}
	if sink != nil {
		t.Error("expected a nil sink on a malformed URI")
	}
}
