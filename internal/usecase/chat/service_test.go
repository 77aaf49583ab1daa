package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"iter"
	"math/rand"
	"strings"
	"testing"
	"time"

	"prompt-enhancer/internal/adapter/memory"
	"prompt-enhancer/internal/config"
	"prompt-enhancer/internal/domain"
)

var errQuota = errors.New("quota exceeded")

type fakeClient struct {
	fragments []string
	err       error
	requests  []CompletionRequest
}

func (f *fakeClient) Stream(_ context.Context, req CompletionRequest) iter.Seq2[string, error] {
	f.requests = append(f.requests, req)
	return func(yield func(string, error) bool) {
		for _, fr := range f.fragments {
			if !yield(fr, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func testConfig() config.Config {
	return config.Config{
		Model:                  "test-model",
		Temperature:            0,
		MaxCompletionTokens:    512,
		SystemPrompt:           "sys",
		ImageMaxBytes:          250000,
		ImageMinQuality:        10,
		ImageQualityStep:       5,
		ImageStartQuality:      85,
		AttachmentPreviewChars: 100,
		ForwardImages:          true,
		ImageDetail:            "high",
	}
}

func newTestService(client Client, cfg config.Config) *Service {
	svc := NewService(memory.NewStore(time.Hour), client, cfg)
	svc.countTokens = func([]domain.Message) int { return 42 }
	return svc
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(rng.Intn(256))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInitSession_SystemOnlyAndIdempotent(t *testing.T) {
	svc := newTestService(&fakeClient{}, testConfig())

	sess := svc.InitSession("s")
	if sess.Transcript.Len() != 1 {
		t.Fatalf("expected system only, got %d entries", sess.Transcript.Len())
	}
	visible, err := svc.History("s")
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 0 {
		t.Fatalf("expected empty visible history, got %d", len(visible))
	}

	if _, err := svc.AppendUserTurn(sess.Transcript, Input{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if again := svc.InitSession("s"); again.Transcript.Len() != 2 {
		t.Fatalf("InitSession reset an existing transcript: %d entries", again.Transcript.Len())
	}
}

func TestAppendUserTurn_TrimsTextWithoutAttachments(t *testing.T) {
	svc := newTestService(&fakeClient{}, testConfig())
	sess := svc.InitSession("s")

	reports, err := svc.AppendUserTurn(sess.Transcript, Input{Text: "  Build me a login page \n"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports, got %d", len(reports))
	}
	if sess.Transcript.Len() != 2 {
		t.Fatalf("expected one new entry, got %d total", sess.Transcript.Len())
	}
	got := sess.Transcript.Messages()[1]
	if got.Role != domain.RoleUser || got.Content != "Build me a login page" {
		t.Fatalf("unexpected user entry: %+v", got)
	}
}

func TestHandleMessage_CommitsStreamedReply(t *testing.T) {
	client := &fakeClient{fragments: []string{"Here is ", "your ", "prompt"}}
	svc := newTestService(client, testConfig())
	svc.InitSession("s")

	var seen []string
	reply, err := svc.HandleMessage(context.Background(), "s", Input{Text: "Build me a login page"}, func(f string) {
		seen = append(seen, f)
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Here is your prompt" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
	if reply.PromptTokens != 42 {
		t.Fatalf("unexpected token estimate %d", reply.PromptTokens)
	}
	if strings.Join(seen, "|") != "Here is |your |prompt" {
		t.Fatalf("fragments not relayed in order: %v", seen)
	}

	if len(client.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(client.requests))
	}
	req := client.requests[0]
	if req.Model != "test-model" || req.MaxCompletionTokens != 512 {
		t.Fatalf("unexpected model config: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != domain.RoleSystem || req.Messages[1].Text != "Build me a login page" {
		t.Fatalf("unexpected request messages: %+v", req.Messages)
	}

	history, _ := svc.History("s")
	if len(history) != 2 || history[1].Role != domain.RoleAssistant || history[1].Content != "Here is your prompt" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestHandleMessage_MidStreamFailureCommitsNothing(t *testing.T) {
	client := &fakeClient{fragments: []string{"Here is "}, err: errQuota}
	svc := newTestService(client, testConfig())
	sess := svc.InitSession("s")

	var seen []string
	_, err := svc.HandleMessage(context.Background(), "s", Input{Text: "Build me a login page"}, func(f string) {
		seen = append(seen, f)
	})
	if !errors.Is(err, errQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(seen) != 1 || seen[0] != "Here is " {
		t.Fatalf("expected the partial fragment to be relayed, got %v", seen)
	}
	for _, m := range sess.Transcript.Messages() {
		if m.Role == domain.RoleAssistant {
			t.Fatal("partial reply was committed")
		}
	}
	if sess.Transcript.Len() != 1 {
		t.Fatalf("expected transcript back to its pre-turn state, got %d entries", sess.Transcript.Len())
	}

	client.err = nil
	client.fragments = []string{"ok"}
	if _, err := svc.HandleMessage(context.Background(), "s", Input{Text: "Build me a login page"}, nil); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if sess.Transcript.Len() != 3 {
		t.Fatalf("expected 3 entries after retry, got %d", sess.Transcript.Len())
	}
}

func TestHandleMessage_TranscriptAlternates(t *testing.T) {
	client := &fakeClient{fragments: []string{"done"}}
	svc := newTestService(client, testConfig())
	sess := svc.InitSession("s")

	const turns = 5
	for i := 0; i < turns; i++ {
		if _, err := svc.HandleMessage(context.Background(), "s", Input{Text: fmt.Sprintf("turn %d", i)}, nil); err != nil {
			t.Fatal(err)
		}
	}

	msgs := sess.Transcript.Messages()
	if len(msgs) != 1+2*turns {
		t.Fatalf("expected %d entries, got %d", 1+2*turns, len(msgs))
	}
	for i, m := range msgs[1:] {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		if m.Role != want {
			t.Fatalf("entry %d: expected %s, got %s", i+1, want, m.Role)
		}
	}
	if last := client.requests[turns-1]; len(last.Messages) != 1+2*(turns-1)+1 {
		t.Fatalf("last request should carry the whole transcript, got %d messages", len(last.Messages))
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	svc := newTestService(&fakeClient{}, testConfig())

	if _, err := svc.HandleMessage(context.Background(), "s", Input{Text: "   "}, nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.HandleMessage(context.Background(), "missing", Input{Text: "hi"}, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	sess := svc.InitSession("s")
	if !sess.BeginTurn() {
		t.Fatal("could not claim session")
	}
	defer sess.EndTurn()
	if _, err := svc.HandleMessage(context.Background(), "s", Input{Text: "hi"}, nil); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}
}

func TestHandleMessage_CompressesOversizedImage(t *testing.T) {
	client := &fakeClient{fragments: []string{"nice"}}
	svc := newTestService(client, testConfig())
	sess := svc.InitSession("s")

	raw := noisePNG(t, 400, 400)
	if len(raw) <= 250000 {
		t.Fatalf("fixture too small: %d bytes", len(raw))
	}

	reply, err := svc.HandleMessage(context.Background(), "s", Input{
		Text:        "Make it look like this",
		Attachments: []Attachment{{Name: "shot.png", Data: raw}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(reply.Attachments) != 1 {
		t.Fatalf("expected one report, got %d", len(reply.Attachments))
	}
	rep := reply.Attachments[0]
	if !rep.Compressed || rep.OriginalSize != len(raw) {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Size == len(raw) {
		t.Fatal("reported size must not be the original size")
	}
	if rep.Size > 250000 && rep.Quality != 10 {
		t.Fatalf("size %d over the ceiling without reaching the floor (quality %d)", rep.Size, rep.Quality)
	}

	user := sess.Transcript.Messages()[1]
	if !strings.HasPrefix(user.Content, "Make it look like this\n\nAttached file(s):\n") {
		t.Fatalf("unexpected user content: %q", user.Content)
	}
	if !strings.Contains(user.Content, fmt.Sprintf("File name: shot.png, size: %d bytes", rep.Size)) {
		t.Fatalf("description does not report compressed size: %q", user.Content)
	}
	if !strings.Contains(user.Content, "data:image/jpeg;base64,") || !strings.Contains(user.Content, "[truncated") {
		t.Fatalf("expected a truncated jpeg preview: %q", user.Content)
	}

	sent := client.requests[0].Messages[1]
	if len(sent.Images) != 1 || !strings.HasPrefix(sent.Images[0], "data:image/jpeg;base64,") {
		t.Fatalf("expected the compressed image to be forwarded, got %d images", len(sent.Images))
	}
	if len(user.Images) != 0 {
		t.Fatal("image payload kept after the turn was answered")
	}
}

func TestHandleMessage_UndecodableOversizeIsSkipped(t *testing.T) {
	client := &fakeClient{fragments: []string{"ok"}}
	cfg := testConfig()
	cfg.ImageMaxBytes = 10
	svc := newTestService(client, cfg)
	sess := svc.InitSession("s")

	reply, err := svc.HandleMessage(context.Background(), "s", Input{
		Text: "see notes",
		Attachments: []Attachment{
			{Name: "notes.txt", Data: []byte("these are plain text notes, not an image")},
			{Name: "tiny.txt", Data: []byte("hi")},
		},
	}, nil)
	if err != nil {
		t.Fatalf("a bad attachment must not abort the turn: %v", err)
	}
	if !reply.Attachments[0].Skipped || reply.Attachments[1].Skipped {
		t.Fatalf("unexpected reports: %+v", reply.Attachments)
	}

	content := sess.Transcript.Messages()[1].Content
	if !strings.Contains(content, "File name: notes.txt, size: 40 bytes (skipped:") {
		t.Fatalf("skipped attachment not flagged: %q", content)
	}
	if !strings.Contains(content, "File name: tiny.txt, size: 2 bytes, data: data:text/plain;base64,aGk=") {
		t.Fatalf("small attachment not described: %q", content)
	}
	if imgs := client.requests[0].Messages[1].Images; len(imgs) != 0 {
		t.Fatalf("non-images must not be forwarded as images, got %d", len(imgs))
	}
}

func TestHandleMessage_CorruptImageUnderCeilingNotForwarded(t *testing.T) {
	client := &fakeClient{fragments: []string{"ok"}}
	svc := newTestService(client, testConfig())
	sess := svc.InitSession("s")

	corrupt := append([]byte("\x89PNG\r\n\x1a\n"), []byte("garbage after a valid header")...)
	good := noisePNG(t, 8, 8)

	reply, err := svc.HandleMessage(context.Background(), "s", Input{
		Text: "two screenshots",
		Attachments: []Attachment{
			{Name: "broken.png", Data: corrupt},
			{Name: "good.png", Data: good},
		},
	}, nil)
	if err != nil {
		t.Fatalf("a corrupt image must not abort the turn: %v", err)
	}

	broken, valid := reply.Attachments[0], reply.Attachments[1]
	if broken.MimeType != "image/png" || broken.Forwarded || broken.Skipped || broken.Error == "" {
		t.Fatalf("unexpected report for corrupt image: %+v", broken)
	}
	if !valid.Forwarded || valid.Error != "" {
		t.Fatalf("unexpected report for valid image: %+v", valid)
	}

	if client.requests[0].ImageDetail != "high" {
		t.Fatalf("image detail not passed through: %q", client.requests[0].ImageDetail)
	}
	imgs := client.requests[0].Messages[1].Images
	if len(imgs) != 1 || imgs[0] != "data:image/png;base64,"+base64.StdEncoding.EncodeToString(good) {
		t.Fatalf("expected only the valid image forwarded, got %d", len(imgs))
	}
	if !strings.Contains(sess.Transcript.Messages()[1].Content, "File name: broken.png, size: 36 bytes, data:") {
		t.Fatalf("corrupt image not described as text: %q", sess.Transcript.Messages()[1].Content)
	}
}

func TestHandleMessage_ForwardImagesDisabled(t *testing.T) {
	client := &fakeClient{fragments: []string{"ok"}}
	cfg := testConfig()
	cfg.ForwardImages = false
	svc := newTestService(client, cfg)
	svc.InitSession("s")

	_, err := svc.HandleMessage(context.Background(), "s", Input{
		Attachments: []Attachment{{Name: "small.png", Data: noisePNG(t, 8, 8)}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sent := client.requests[0].Messages[1]
	if len(sent.Images) != 0 {
		t.Fatalf("expected metadata only, got %d images", len(sent.Images))
	}
	if !strings.HasPrefix(sent.Text, "Attached file(s):\nFile name: small.png") {
		t.Fatalf("unexpected text: %q", sent.Text)
	}
}

func TestReset_StartsFreshTranscript(t *testing.T) {
	svc := newTestService(&fakeClient{fragments: []string{"ok"}}, testConfig())
	svc.InitSession("s")
	if _, err := svc.HandleMessage(context.Background(), "s", Input{Text: "hi"}, nil); err != nil {
		t.Fatal(err)
	}

	sess := svc.Reset("s")
	if sess.Transcript.Len() != 1 {
		t.Fatalf("expected fresh transcript, got %d entries", sess.Transcript.Len())
	}
	if !svc.End("s") {
		t.Fatal("expected session to be removed")
	}
	if _, err := svc.History("s"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("abcdef", 3); got != "abc... [truncated, 6 chars total]" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := preview("abc", 3); got != "abc" {
		t.Fatalf("short input must be unchanged, got %q", got)
	}
	if got := preview("abc", 0); got != "abc" {
		t.Fatalf("zero limit disables truncation, got %q", got)
	}
}
