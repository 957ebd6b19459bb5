package stream

import (
	"testing"
)

func TestFramerSplitsAcrossChunkBoundaries(t *testing.T) {
	var f framer

	// A frame split mid-JSON across two transport chunks must parse once the
	// closing newline arrives.
	frames := f.Append([]byte("{\"text\":\"a\"}\n{\"don"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 complete frame from first chunk, got %d", len(frames))
	}
	if frames[0].Text != "a" {
		t.Errorf("first frame text = %q, want a", frames[0].Text)
	}

	frames = f.Append([]byte("e\":true,\"status\":\"SAFE\"}\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame from second chunk, got %d", len(frames))
	}
	if !frames[0].Done || frames[0].Status != StatusSafe {
		t.Errorf("terminal frame = %+v, want done SAFE", frames[0])
	}
}

func TestFramerMultipleFramesInOneChunk(t *testing.T) {
	var f framer

	frames := f.Append([]byte("{\"text\":\"x\"}\n{\"text\":\"y\"}\n{\"text\":\"z\"}\n"))
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].Text != "x" || frames[1].Text != "y" || frames[2].Text != "z" {
		t.Errorf("frames out of order: %+v", frames)
	}
}

func TestFramerDiscardsMalformedLines(t *testing.T) {
	var f framer

	frames := f.Append([]byte("not-json\n{\"text\":\"ok\"}\n\n"))
	if len(frames) != 1 {
		t.Fatalf("expected malformed and blank lines to be dropped, got %d frames", len(frames))
	}
	if frames[0].Text != "ok" {
		t.Errorf("surviving frame text = %q, want ok", frames[0].Text)
	}
}

func TestFramerHoldsPartialLine(t *testing.T) {
	var f framer

	if frames := f.Append([]byte("{\"text\":")); frames != nil {
		t.Fatalf("partial line must produce no frames, got %v", frames)
	}
	if frames := f.Append([]byte("\"joined\"}")); frames != nil {
		t.Fatalf("still no newline, got %v", frames)
	}

	frames := f.Append([]byte("\n"))
	if len(frames) != 1 || frames[0].Text != "joined" {
		t.Fatalf("expected the held line to parse on newline, got %v", frames)
	}
}

func TestFramerTerminalFrameFields(t *testing.T) {
	var f framer

	line := `{"done":true,"status":"DANGER","ttft":120,"totalMs":900,"userContext":{"allergies":["peanut"]},"error":"partial upstream failure"}` + "\n"
	frames := f.Append([]byte(line))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}

	frame := frames[0]
	if !frame.Done || frame.Status != StatusDanger {
		t.Errorf("verdict = %+v, want done DANGER", frame)
	}
	if frame.TTFT != 120 || frame.TotalMs != 900 {
		t.Errorf("timing = ttft %d totalMs %d, want 120/900", frame.TTFT, frame.TotalMs)
	}
	if string(frame.UserContext) != `{"allergies":["peanut"]}` {
		t.Errorf("userContext = %s", frame.UserContext)
	}
	if frame.Error != "partial upstream failure" {
		t.Errorf("error = %q", frame.Error)
	}
}
