// File: internal/browser/session/tabs.go
package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// ListTabs enumerates the open tabs in a stable order: tabs keep their index
// across calls, new tabs append at the end.
func (s *Session) ListTabs(ctx context.Context) ([]schemas.TabInfo, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.refreshTabs(ctx)
}

// refreshTabs reconciles the session's tab order with the browser's live
// target list. The caller must hold the operation semaphore.
func (s *Session) refreshTabs(ctx context.Context) ([]schemas.TabInfo, error) {
	opCtx, cancel := s.opContext(ctx, s.cfg.ActionTimeout)
	defer cancel()

	infos, err := chromedp.Targets(opCtx)
	if err != nil {
		return nil, fmt.Errorf("listing tabs: %w", err)
	}

	live := make(map[target.ID]*target.Info)
	for _, info := range infos {
		if info.Type == "page" {
			live[info.TargetID] = info
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep known tabs in their existing order, drop the vanished, append
	// newcomers in the order the browser reports them.
	order := s.tabs[:0:0]
	for _, id := range s.tabs {
		if _, ok := live[id]; ok {
			order = append(order, id)
		} else if h, held := s.handles[id]; held {
			if h.ctx != s.rootCtx {
				h.cancel()
			}
			delete(s.handles, id)
		}
	}
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if !containsTarget(order, info.TargetID) {
			order = append(order, info.TargetID)
		}
	}
	s.tabs = order

	// The active tab may have been closed from inside the page.
	if _, ok := live[s.activeTab]; !ok && len(order) > 0 {
		s.activeTab = order[0]
		s.frameSelector = ""
	}

	tabs := make([]schemas.TabInfo, 0, len(order))
	for i, id := range order {
		info := live[id]
		tabs = append(tabs, schemas.TabInfo{
			Index:  i,
			Title:  info.Title,
			URL:    info.URL,
			Active: id == s.activeTab,
		})
	}
	return tabs, nil
}

// SwitchTab activates the tab at index and brings it to the front. Element
// operations address the newly active tab afterwards, with any iframe
// scoping cleared.
func (s *Session) SwitchTab(ctx context.Context, index int) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	tabs, err := s.refreshTabs(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(tabs) {
		return fmt.Errorf("tab index %d out of range, %d tabs open", index, len(tabs))
	}

	s.mu.Lock()
	id := s.tabs[index]
	h := s.ensureHandleLocked(id)
	s.activeTab = id
	s.frameSelector = ""
	s.mu.Unlock()

	combined, cancelCombined := CombineContext(h.ctx, ctx)
	defer cancelCombined()
	opCtx, cancel := context.WithTimeout(combined, s.cfg.ActionTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, page.BringToFront()); err != nil {
		return fmt.Errorf("activating tab %d: %w", index, err)
	}

	s.logger.Debug("Switched tab", zap.Int("index", index), zap.String("url", tabs[index].URL))
	return nil
}

// CloseTab closes the tab at index. The last remaining tab cannot be closed.
// Closing the active tab activates the next tab, or the previous one when
// the closed tab was last.
func (s *Session) CloseTab(ctx context.Context, index int) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	tabs, err := s.refreshTabs(ctx)
	if err != nil {
		return err
	}
	if len(tabs) <= 1 {
		return ErrLastTab
	}
	if index < 0 || index >= len(tabs) {
		return fmt.Errorf("tab index %d out of range, %d tabs open", index, len(tabs))
	}

	s.mu.Lock()
	id := s.tabs[index]
	h := s.ensureHandleLocked(id)
	wasActive := id == s.activeTab
	s.mu.Unlock()

	combined, cancelCombined := CombineContext(h.ctx, ctx)
	opCtx, cancel := context.WithTimeout(combined, s.cfg.ActionTimeout)
	err = chromedp.Run(opCtx, page.Close())
	cancel()
	cancelCombined()
	if err != nil {
		return fmt.Errorf("closing tab %d: %w", index, err)
	}

	s.mu.Lock()
	if h.ctx != s.rootCtx {
		h.cancel()
	}
	delete(s.handles, id)
	s.tabs = removeTarget(s.tabs, id)

	var next target.ID
	if wasActive && len(s.tabs) > 0 {
		nextIdx := index
		if nextIdx >= len(s.tabs) {
			nextIdx = len(s.tabs) - 1
		}
		next = s.tabs[nextIdx]
		s.activeTab = next
		s.frameSelector = ""
		s.ensureHandleLocked(next)
	}
	s.mu.Unlock()

	if next != "" {
		if err := s.bringToFront(ctx, next); err != nil {
			s.logger.Warn("Could not activate successor tab", zap.Error(err))
		}
	}

	s.logger.Debug("Closed tab", zap.Int("index", index), zap.Bool("was_active", wasActive))
	return nil
}

// ensureHandleLocked returns the DevTools context for a target, attaching on
// first use. s.mu must be held.
func (s *Session) ensureHandleLocked(id target.ID) *tabHandle {
	if h, ok := s.handles[id]; ok {
		return h
	}
	ctx, cancel := chromedp.NewContext(s.rootCtx, chromedp.WithTargetID(id))
	h := &tabHandle{ctx: ctx, cancel: cancel}
	s.handles[id] = h
	return h
}

func (s *Session) bringToFront(ctx context.Context, id target.ID) error {
	s.mu.Lock()
	h := s.ensureHandleLocked(id)
	s.mu.Unlock()

	combined, cancelCombined := CombineContext(h.ctx, ctx)
	defer cancelCombined()
	opCtx, cancel := context.WithTimeout(combined, s.cfg.ActionTimeout)
	defer cancel()
	return chromedp.Run(opCtx, page.BringToFront())
}

func containsTarget(ids []target.ID, id target.ID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func removeTarget(ids []target.ID, id target.ID) []target.ID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
