// Package mock provides an in-memory test double for the dictionary.Client
// interface.
//
// Client behaves like a VOICEVOX engine user dictionary: it stores entries by
// id, never enforces uniqueness, and assigns sequential ids on Add. Errors can
// be injected per operation, and per id for Delete.
//
// Example:
//
//	c := mock.New(map[string]dictionary.Word{
//	    "a": {Surface: "さくら", Pronunciation: "サクラ"},
//	})
//	c.DeleteErrs = map[string]error{"a": errors.New("boom")}
package mock

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/MrWong99/sumirevox/internal/dictionary"
)

var _ dictionary.Client = (*Client)(nil)

// AddCall records a single invocation of Add.
type AddCall struct {
	Surface       string
	Pronunciation string
}

// Client is a mock implementation of dictionary.Client.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ListErr, if non-nil, is returned by List.
	ListErr error

	// AddErr, if non-nil, is returned by Add and nothing is stored.
	AddErr error

	// DeleteErrs maps ids to the error Delete returns for them. The entry is
	// kept when an error is returned.
	DeleteErrs map[string]error

	// --- Call records ---

	// ListCalls counts calls to List.
	ListCalls int

	// AddCalls records every call to Add in order.
	AddCalls []AddCall

	// DeleteCalls records every id passed to Delete in order.
	DeleteCalls []string

	entries map[string]dictionary.Word
	nextID  int
}

// New returns a Client pre-populated with a copy of entries.
func New(entries map[string]dictionary.Word) *Client {
	c := &Client{entries: make(map[string]dictionary.Word, len(entries))}
	maps.Copy(c.entries, entries)
	return c
}

// List implements dictionary.Client.
func (c *Client) List(_ context.Context) (map[string]dictionary.Word, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ListCalls++
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	return maps.Clone(c.ensure()), nil
}

// Add implements dictionary.Client.
func (c *Client) Add(_ context.Context, surface, pronunciation string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.AddCalls = append(c.AddCalls, AddCall{Surface: surface, Pronunciation: pronunciation})
	if c.AddErr != nil {
		return "", c.AddErr
	}
	c.nextID++
	id := fmt.Sprintf("mock-%04d", c.nextID)
	c.ensure()[id] = dictionary.Word{Surface: surface, Pronunciation: pronunciation}
	return id, nil
}

// Delete implements dictionary.Client.
func (c *Client) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.DeleteCalls = append(c.DeleteCalls, id)
	if err := c.DeleteErrs[id]; err != nil {
		return err
	}
	entries := c.ensure()
	if _, ok := entries[id]; !ok {
		return fmt.Errorf("mock: no entry %q", id)
	}
	delete(entries, id)
	return nil
}

// Entries returns a snapshot of the stored entries.
func (c *Client) Entries() map[string]dictionary.Word {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.ensure())
}

// Calls returns the total number of List, Add and Delete calls.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ListCalls + len(c.AddCalls) + len(c.DeleteCalls)
}

// ensure lazily initialises the entry map for zero-value Clients. Must be
// called with c.mu held.
func (c *Client) ensure() map[string]dictionary.Word {
	if c.entries == nil {
		c.entries = map[string]dictionary.Word{}
	}
	return c.entries
}
