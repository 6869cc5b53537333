package rulestore

import (
	"context"
	"fmt"
	"strings"
)

// Names of the two global keyword lists.
const (
	ListWhitelist = "whitelist"
	ListBlacklist = "blacklist"
)

func checkList(name string) error {
	switch name {
	case ListWhitelist, ListBlacklist:
		return nil
	default:
		return fmt.Errorf("unknown keyword list: %q", name)
	}
}

func cleanWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func (s *Store) AddKeywords(ctx context.Context, list string, words ...string) error {
	if err := checkList(list); err != nil {
		return err
	}
	if err := s.Lists.Add(ctx, list, cleanWords(words)...); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

func (s *Store) RemoveKeywords(ctx context.Context, list string, words ...string) error {
	if err := checkList(list); err != nil {
		return err
	}
	if err := s.Lists.Remove(ctx, list, cleanWords(words)...); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// Sorted contents of a keyword list.
func (s *Store) Keywords(ctx context.Context, list string) ([]string, error) {
	if err := checkList(list); err != nil {
		return nil, err
	}
	return s.Lists.List(ctx, list)
}

func (s *Store) KeywordLists(ctx context.Context) (KeywordLists, error) {
	wl, err := s.Lists.List(ctx, ListWhitelist)
	if err != nil {
		return KeywordLists{}, err
	}
	bl, err := s.Lists.List(ctx, ListBlacklist)
	if err != nil {
		return KeywordLists{}, err
	}
	return KeywordLists{Whitelist: wl, Blacklist: bl}, nil
}

// Merges the given lists into the global lists, or replaces them entirely if replace is set.
func (s *Store) ImportKeywords(ctx context.Context, lists KeywordLists, replace bool) error {
	if err := s.importKeywords(ctx, lists, replace); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

func (s *Store) importKeywords(ctx context.Context, lists KeywordLists, replace bool) error {
	if replace {
		if err := s.replaceList(ctx, ListWhitelist, lists.Whitelist); err != nil {
			return err
		}
		return s.replaceList(ctx, ListBlacklist, lists.Blacklist)
	}
	if err := s.Lists.Add(ctx, ListWhitelist, cleanWords(lists.Whitelist)...); err != nil {
		return err
	}
	return s.Lists.Add(ctx, ListBlacklist, cleanWords(lists.Blacklist)...)
}

func (s *Store) replaceList(ctx context.Context, name string, words []string) error {
	cur, err := s.Lists.List(ctx, name)
	if err != nil {
		return err
	}
	if err := s.Lists.Remove(ctx, name, cur...); err != nil {
		return err
	}
	return s.Lists.Add(ctx, name, cleanWords(words)...)
}
