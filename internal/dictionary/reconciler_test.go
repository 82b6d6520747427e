package dictionary_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sumirevox/internal/dictionary"
	"github.com/MrWong99/sumirevox/internal/dictionary/mock"
	"github.com/MrWong99/sumirevox/internal/resilience"
	"github.com/MrWong99/sumirevox/pkg/voicevox"
)

func TestUpsertWord_ReplacesRawDuplicates(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{
		"a": {Surface: "さくら", Pronunciation: "サクラ"},
		"b": {Surface: "さくら", Pronunciation: "サクラ"},
		"c": {Surface: "桜餅", Pronunciation: "サクラモチ"},
	})
	r := dictionary.NewReconciler(client)

	res, err := r.UpsertWord(context.Background(), "さくら", "さくら")
	if err != nil {
		t.Fatalf("UpsertWord: %v", err)
	}
	if res.Outcome != dictionary.OutcomeAdded {
		t.Errorf("Outcome = %v, want %v", res.Outcome, dictionary.OutcomeAdded)
	}
	if got := client.DeleteCalls; !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("DeleteCalls = %v, want [a b]", got)
	}
	if !slices.Equal(res.Attempted, []string{"a", "b"}) || !slices.Equal(res.Deleted, []string{"a", "b"}) {
		t.Errorf("Attempted = %v, Deleted = %v", res.Attempted, res.Deleted)
	}

	var matches int
	for _, w := range client.Entries() {
		if w.Surface == "さくら" {
			matches++
			if w.Pronunciation != "サクラ" {
				t.Errorf("stored pronunciation = %q, want katakana", w.Pronunciation)
			}
		}
	}
	if matches != 1 {
		t.Errorf("entries with surface さくら = %d, want 1", matches)
	}
	if _, ok := client.Entries()["c"]; !ok {
		t.Error("unrelated entry was removed")
	}
}

func TestUpsertWord_MatchesWidthAndCaseVariants(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{
		"x1": {Surface: "Discord", Pronunciation: "ディスコード"},
		"x2": {Surface: "ｄｉｓｃｏｒｄ", Pronunciation: "ディスコード"},
		"x3": {Surface: "DISCORD ", Pronunciation: "ディスコ"},
		"x4": {Surface: "discordbot", Pronunciation: "ディスコードボット"},
	})
	r := dictionary.NewReconciler(client)

	res, err := r.UpsertWord(context.Background(), "DiScOrD", "でぃすこーど")
	if err != nil {
		t.Fatalf("UpsertWord: %v", err)
	}
	if !slices.Equal(res.Attempted, []string{"x1", "x2", "x3"}) {
		t.Errorf("Attempted = %v, want [x1 x2 x3]", res.Attempted)
	}
	if res.Key.Surface != "ｄｉｓｃｏｒｄ" || res.Key.Pronunciation != "ディスコード" {
		t.Errorf("Key = %+v", res.Key)
	}

	entries := client.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want new entry plus x4", entries)
	}
	if got := entries[res.ID]; got.Surface != "ｄｉｓｃｏｒｄ" {
		t.Errorf("new entry = %+v", got)
	}
}

func TestUpsertWord_IdenticalEntryIsReplaced(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{
		"same": {Surface: "すみれ", Pronunciation: "スミレ"},
	})
	r := dictionary.NewReconciler(client)

	res, err := r.UpsertWord(context.Background(), "すみれ", "スミレ")
	if err != nil {
		t.Fatalf("UpsertWord: %v", err)
	}
	if !slices.Equal(client.DeleteCalls, []string{"same"}) || len(client.AddCalls) != 1 {
		t.Errorf("DeleteCalls = %v, AddCalls = %v; want one delete then one add", client.DeleteCalls, client.AddCalls)
	}
	if res.ID == "same" {
		t.Error("expected a freshly assigned id")
	}
}

func TestUpsertWord_InvalidInputMakesNoCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		surface, reading string
	}{
		{"empty surface", "", "サクラ"},
		{"empty reading", "さくら", ""},
		{"whitespace surface", " \t", "サクラ"},
		{"ideographic space reading", "さくら", "　"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := mock.New(nil)
			r := dictionary.NewReconciler(client)

			res, err := r.UpsertWord(context.Background(), tt.surface, tt.reading)
			if !errors.Is(err, dictionary.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
			if res != nil {
				t.Errorf("res = %+v, want nil", res)
			}
			if n := client.Calls(); n != 0 {
				t.Errorf("client calls = %d, want 0", n)
			}
		})
	}
}

func TestUpsertWord_FetchFailure(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{"a": {Surface: "さくら"}})
	client.ListErr = errors.New("connection refused")
	r := dictionary.NewReconciler(client)

	res, err := r.UpsertWord(context.Background(), "さくら", "サクラ")
	if !errors.Is(err, dictionary.ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}
	if res != nil {
		t.Errorf("res = %+v, want nil", res)
	}
	if len(client.DeleteCalls) != 0 || len(client.AddCalls) != 0 {
		t.Errorf("mutations after fetch failure: deletes=%v adds=%v", client.DeleteCalls, client.AddCalls)
	}
}

func TestUpsertWord_PartialDeleteFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("engine busy")
	client := mock.New(map[string]dictionary.Word{
		"a": {Surface: "さくら"},
		"b": {Surface: "さくら"},
		"c": {Surface: "さくら"},
	})
	client.DeleteErrs = map[string]error{"b": boom}
	r := dictionary.NewReconciler(client)

	res, err := r.UpsertWord(context.Background(), "さくら", "サクラ")
	if err != nil {
		t.Fatalf("UpsertWord: %v", err)
	}
	if res.Outcome != dictionary.OutcomeAddedStaleRemain {
		t.Errorf("Outcome = %v, want %v", res.Outcome, dictionary.OutcomeAddedStaleRemain)
	}
	if len(client.DeleteCalls) != 3 {
		t.Errorf("DeleteCalls = %v, want all three attempted", client.DeleteCalls)
	}
	if len(res.FailedDeletes) != 1 || res.FailedDeletes[0].ID != "b" || !errors.Is(res.FailedDeletes[0].Err, boom) {
		t.Errorf("FailedDeletes = %+v", res.FailedDeletes)
	}
	if !slices.Equal(res.Deleted, []string{"a", "c"}) {
		t.Errorf("Deleted = %v, want [a c]", res.Deleted)
	}
	if res.ID == "" {
		t.Error("ID is empty after a successful add")
	}
}

func TestUpsertWord_AddFailureReturnsPartialResult(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{
		"a": {Surface: "さくら"},
		"b": {Surface: "さくら"},
	})
	client.AddErr = errors.New("422 unprocessable")
	r := dictionary.NewReconciler(client)

	res, err := r.UpsertWord(context.Background(), "さくら", "サクラ")
	if !errors.Is(err, dictionary.ErrAddFailed) {
		t.Fatalf("err = %v, want ErrAddFailed", err)
	}
	if res == nil {
		t.Fatal("res = nil, want partial result")
	}
	if res.Outcome != dictionary.OutcomeAddFailed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, dictionary.OutcomeAddFailed)
	}
	if !slices.Equal(res.Deleted, []string{"a", "b"}) {
		t.Errorf("Deleted = %v, want [a b]", res.Deleted)
	}
	if res.ID != "" {
		t.Errorf("ID = %q, want empty", res.ID)
	}
	if n := len(client.Entries()); n != 0 {
		t.Errorf("entries = %d, want 0 (word is now missing)", n)
	}
}

func TestUpsertResult_JSON(t *testing.T) {
	t.Parallel()

	res := dictionary.UpsertResult{
		Outcome:       dictionary.OutcomeAddedStaleRemain,
		ID:            "n",
		Attempted:     []string{"a"},
		Deleted:       []string{},
		FailedDeletes: []dictionary.DeleteFailure{{ID: "a", Err: errors.New("busy")}},
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"outcome":"added_stale_remain"`, `"failed_deletes":[{"id":"a","error":"busy"}]`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
}

func TestDeleteWord(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{"a": {Surface: "さくら"}})
	client.DeleteErrs = map[string]error{"broken": errors.New("boom")}
	r := dictionary.NewReconciler(client)
	ctx := context.Background()

	if err := r.DeleteWord(ctx, " "); !errors.Is(err, dictionary.ErrInvalidInput) {
		t.Errorf("DeleteWord(blank) = %v, want ErrInvalidInput", err)
	}
	if err := r.DeleteWord(ctx, "broken"); !errors.Is(err, dictionary.ErrDeleteFailed) {
		t.Errorf("DeleteWord(broken) = %v, want ErrDeleteFailed", err)
	}
	if err := r.DeleteWord(ctx, "a"); err != nil {
		t.Errorf("DeleteWord(a) = %v", err)
	}
	if len(client.Entries()) != 0 {
		t.Error("entry a still present")
	}
}

func TestList_Sorted(t *testing.T) {
	t.Parallel()

	client := mock.New(map[string]dictionary.Word{
		"2": {Surface: "b"},
		"1": {Surface: "a"},
		"3": {Surface: "a"},
	})
	r := dictionary.NewReconciler(client)

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if !slices.Equal(ids, []string{"1", "3", "2"}) {
		t.Errorf("ids = %v, want [1 3 2]", ids)
	}

	client.ListErr = errors.New("down")
	if _, err := r.List(context.Background()); !errors.Is(err, dictionary.ErrFetchFailed) {
		t.Errorf("List err = %v, want ErrFetchFailed", err)
	}
}

func TestWithBreaker_FailsFastWhenOpen(t *testing.T) {
	t.Parallel()

	client := mock.New(nil)
	client.ListErr = errors.New("down")
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "voicevox",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	r := dictionary.NewReconciler(dictionary.WithBreaker(client, cb))

	_, err := r.UpsertWord(context.Background(), "さくら", "サクラ")
	if !errors.Is(err, dictionary.ErrFetchFailed) {
		t.Fatalf("first call err = %v, want ErrFetchFailed", err)
	}
	_, err = r.UpsertWord(context.Background(), "さくら", "サクラ")
	if !errors.Is(err, resilience.ErrCircuitOpen) || !errors.Is(err, dictionary.ErrFetchFailed) {
		t.Errorf("second call err = %v, want ErrFetchFailed wrapping ErrCircuitOpen", err)
	}
	if client.ListCalls != 1 {
		t.Errorf("ListCalls = %d, want 1", client.ListCalls)
	}
}

// fakeEngine is a minimal in-memory VOICEVOX user dictionary HTTP server.
type fakeEngine struct {
	mu    sync.Mutex
	words map[string]voicevox.UserDictWord
}

func (e *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/user_dict":
		_ = json.NewEncoder(w).Encode(e.words)
	case r.Method == http.MethodPost && r.URL.Path == "/user_dict_word":
		id := uuid.NewString()
		e.words[id] = voicevox.UserDictWord{
			Surface:       r.URL.Query().Get("surface"),
			Pronunciation: r.URL.Query().Get("pronunciation"),
		}
		_ = json.NewEncoder(w).Encode(id)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/user_dict_word/"):
		id := strings.TrimPrefix(r.URL.Path, "/user_dict_word/")
		if _, ok := e.words[id]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		delete(e.words, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func TestUpsertWord_AgainstEngineAPI(t *testing.T) {
	t.Parallel()

	a, b := uuid.NewString(), uuid.NewString()
	engine := &fakeEngine{words: map[string]voicevox.UserDictWord{
		a: {Surface: "ｓｕｍｉｒｅ", Pronunciation: "スミレ"},
		b: {Surface: "Sumire", Pronunciation: "スミレ"},
	}}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	vc, err := voicevox.New(srv.URL)
	if err != nil {
		t.Fatalf("voicevox.New: %v", err)
	}
	r := dictionary.NewReconciler(dictionary.FromVoicevox(vc))

	res, err := r.UpsertWord(context.Background(), "SUMIRE", "すみれ")
	if err != nil {
		t.Fatalf("UpsertWord: %v", err)
	}
	if res.Outcome != dictionary.OutcomeAdded || len(res.Deleted) != 2 {
		t.Errorf("res = %+v", res)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Surface != "ｓｕｍｉｒｅ" || entries[0].Pronunciation != "スミレ" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestEngineFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", errors.New("dial tcp: connection refused"), true},
		{"server error", &voicevox.StatusError{Endpoint: "user_dict", Code: 500}, true},
		{"not found", fmt.Errorf("wrapped: %w", &voicevox.StatusError{Endpoint: "user_dict_word", Code: 404}), false},
		{"unprocessable", &voicevox.StatusError{Endpoint: "user_dict_word", Code: 422}, false},
		{"invalid id", voicevox.ErrInvalidID, false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := dictionary.EngineFailure(tt.err); got != tt.want {
				t.Errorf("EngineFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEngineBreaker_IgnoresMissingWords(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{words: map[string]voicevox.UserDictWord{}}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	vc, err := voicevox.New(srv.URL)
	if err != nil {
		t.Fatalf("voicevox.New: %v", err)
	}
	cb := dictionary.NewEngineBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	r := dictionary.NewReconciler(dictionary.WithBreaker(dictionary.FromVoicevox(vc), cb))

	for range 3 {
		if err := r.DeleteWord(context.Background(), uuid.NewString()); !errors.Is(err, dictionary.ErrDeleteFailed) {
			t.Fatalf("DeleteWord err = %v, want ErrDeleteFailed", err)
		}
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("breaker state = %v, 404 answers must not open it", cb.State())
	}
	if _, err := r.List(context.Background()); err != nil {
		t.Errorf("List after 404s: %v", err)
	}
}
