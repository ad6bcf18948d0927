package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/loyalty/internal/model"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

type fakeActivities struct {
	rows []model.Activity
}

func (f *fakeActivities) ListAfter(_ context.Context, merchantID, afterID int64, limit int) ([]model.Activity, error) {
	var out []model.Activity
	for _, a := range f.rows {
		if a.MerchantID == merchantID && a.ID > afterID {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeRuns struct {
	runs []model.ArchiveRun
}

func (f *fakeRuns) LastRun(_ context.Context, merchantID int64) (*model.ArchiveRun, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].MerchantID == merchantID {
			r := f.runs[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRuns) Record(_ context.Context, run model.ArchiveRun) (*model.ArchiveRun, error) {
	run.ID = int64(len(f.runs) + 1)
	f.runs = append(f.runs, run)
	return &run, nil
}

type fakeMerchants []model.Merchant

func (f fakeMerchants) List(context.Context) ([]model.Merchant, error) { return f, nil }

func testArchiver(acts *fakeActivities, runs *fakeRuns) (*Archiver, *mockS3Client) {
	a := New(Config{
		S3:         S3Config{Bucket: "loyalty", AccessKey: "key", SecretKey: "secret", Prefix: "exports"},
		Passphrase: "pw",
		BatchSize:  2,
	}, acts, runs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mock := newMockS3()
	a.client = mock
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a, mock
}

func activities(merchantID int64, ids ...int64) []model.Activity {
	out := make([]model.Activity, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Activity{ID: id, MerchantID: merchantID, CustomerID: 7, Event: model.EventPurchase, Points: int(id) * 10})
	}
	return out
}

func TestRunUploadsAndFetches(t *testing.T) {
	acts := &fakeActivities{rows: activities(1, 1, 2, 3, 4, 5)}
	runs := &fakeRuns{}
	a, mock := testArchiver(acts, runs)
	ctx := context.Background()

	run, err := a.Run(ctx, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.FromActivityID != 1 || run.ToActivityID != 5 || run.RecordCount != 5 {
		t.Errorf("run = %+v, want 1..5 with 5 records", run)
	}
	want := "exports/1/activities-0000000001-0000000005-20260301T120000Z.ndjson.enc"
	if run.ObjectKey != want {
		t.Errorf("key = %q, want %q", run.ObjectKey, want)
	}
	if _, ok := mock.objects[want]; !ok {
		t.Fatal("object not uploaded")
	}

	got, err := a.Fetch(ctx, want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("fetched %d activities, want 5", len(got))
	}
	if got[4].ID != 5 || got[4].Points != 50 {
		t.Errorf("last = %+v", got[4])
	}
}

func TestRunResumesAfterLastRun(t *testing.T) {
	acts := &fakeActivities{rows: activities(1, 1, 2, 3)}
	runs := &fakeRuns{}
	a, _ := testArchiver(acts, runs)
	ctx := context.Background()

	if _, err := a.Run(ctx, 1); err != nil {
		t.Fatalf("first run: %v", err)
	}

	run, err := a.Run(ctx, 1)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run != nil {
		t.Errorf("second run = %+v, want nil with nothing new", run)
	}

	acts.rows = append(acts.rows, activities(1, 4, 6)...)
	run, err = a.Run(ctx, 1)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if run.FromActivityID != 4 || run.ToActivityID != 6 || run.RecordCount != 2 {
		t.Errorf("run = %+v, want 4..6 with 2 records", run)
	}
}

func TestRunUploadFailureRecordsNothing(t *testing.T) {
	acts := &fakeActivities{rows: activities(1, 1)}
	runs := &fakeRuns{}
	a, mock := testArchiver(acts, runs)
	mock.putErr = errors.New("bucket gone")

	if _, err := a.Run(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if len(runs.runs) != 0 {
		t.Errorf("recorded %d runs, want 0", len(runs.runs))
	}
}

func TestRunAllIsolatesMerchants(t *testing.T) {
	acts := &fakeActivities{rows: append(activities(1, 1, 2), activities(2, 3)...)}
	runs := &fakeRuns{}
	a, _ := testArchiver(acts, runs)

	got, err := a.RunAll(context.Background(), fakeMerchants{{ID: 1}, {ID: 2}, {ID: 3}})
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("runs = %d, want 2", len(got))
	}
	if got[1].MerchantID != 2 || got[1].RecordCount != 1 {
		t.Errorf("second run = %+v", got[1])
	}
}

func TestNotConfigured(t *testing.T) {
	a := New(Config{}, &fakeActivities{}, &fakeRuns{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if a.Enabled() {
		t.Error("archiver enabled without config")
	}
	if _, err := a.Run(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("run err = %v, want ErrNotConfigured", err)
	}
	if _, err := a.Fetch(context.Background(), "k"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("fetch err = %v, want ErrNotConfigured", err)
	}
}
