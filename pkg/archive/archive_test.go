package archive

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vigil-voice/vigil/pkg/dialog"
)

func sampleTranscript() *Transcript {
	return &Transcript{
		SessionID: "sess-abc",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC),
		Emergency: "fire",
		Exchanges: []dialog.Exchange{{User: "fire!", Agent: "are you safe?"}},
	}
}

func TestLocal_Save(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	tr := sampleTranscript()
	if err := store.Save(context.Background(), tr); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(dir, "2026-03-14", "sess-abc.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("transcript file not written: %v", err)
	}
	var back Transcript
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("transcript not valid JSON: %v", err)
	}
	if back.SessionID != "sess-abc" || len(back.Exchanges) != 1 {
		t.Errorf("saved transcript = %+v", back)
	}
}

type fakeS3 struct {
	key  string
	body []byte
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.key = *params.Key
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3_Save(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3(fake, "transcripts", "vigil")

	if err := store.Save(context.Background(), sampleTranscript()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if fake.key != "vigil/2026-03-14/sess-abc.json" {
		t.Errorf("key = %q", fake.key)
	}
	var back Transcript
	if err := json.Unmarshal(fake.body, &back); err != nil {
		t.Fatalf("body not valid JSON: %v", err)
	}
	if back.Emergency != "fire" {
		t.Errorf("body = %+v", back)
	}
}
