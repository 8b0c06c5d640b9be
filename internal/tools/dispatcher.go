// Package tools maps the reasoning engine's tool calls onto document store
// operations. The operation set is closed: dispatch is an exhaustive switch
// over the known names, and every outcome is a structured payload.
package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/venturelab/sprint-copilot/internal/docstore"
	"github.com/venturelab/sprint-copilot/internal/domain"
	"github.com/venturelab/sprint-copilot/internal/shared"
)

// Operation names exposed to the engine.
const (
	OpListSprintItems     = "list_sprint_items"
	OpGetSprintItem       = "get_sprint_item"
	OpUpdateSprintItem    = "update_sprint_item_status"
	OpListItemsForUser    = "list_items_for_user"
	OpGetCanvas           = "get_canvas"
	OpUpdateCanvasSection = "update_canvas_section"
	OpGetSegments         = "get_segments"
	OpUpdateSegment       = "update_segment"
)

// Canvas kinds accepted by get_canvas / update_canvas_section.
const (
	CanvasBMC = "bmc"
	CanvasVPC = "vpc"
)

// Call is one named tool invocation with raw JSON arguments.
type Call struct {
	Name string
	Args json.RawMessage
}

// Dispatcher validates tool calls and routes them to the document store.
type Dispatcher struct {
	store *docstore.Store
}

// NewDispatcher creates a dispatcher over the given store.
func NewDispatcher(store *docstore.Store) *Dispatcher {
	return &Dispatcher{store: store}
}

type getSprintItemArgs struct {
	ItemID string `json:"item_id"`
}

type updateSprintItemArgs struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type listItemsForUserArgs struct {
	UserID string `json:"user_id"`
}

type getCanvasArgs struct {
	Kind string `json:"kind"`
}

type updateCanvasSectionArgs struct {
	Kind    string          `json:"kind"`
	Section string          `json:"section"`
	Patch   json.RawMessage `json:"patch"`
}

type updateSegmentArgs struct {
	SegmentID string          `json:"segment_id"`
	Patch     json.RawMessage `json:"patch"`
}

// Dispatch executes a tool call and returns a JSON payload for the engine.
// Failures are encoded as {"error": {"kind": ..., "message": ...}} payloads;
// Dispatch itself never fails except on marshalling its own result.
func (d *Dispatcher) Dispatch(call Call) json.RawMessage {
	result, err := d.execute(call)
	if err != nil {
		slog.Warn("Tool call failed", "tool", call.Name, "error", err, "kind", shared.KindOf(err))
		return errorPayload(err)
	}
	raw, merr := json.Marshal(result)
	if merr != nil {
		return errorPayload(shared.Validation("tool result not serializable: %v", merr))
	}
	return raw
}

//nolint:gocyclo // One arm per operation keeps the closed set exhaustive and flat.
func (d *Dispatcher) execute(call Call) (any, error) {
	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	switch call.Name {
	case OpListSprintItems:
		return d.ListSprintItems()
	case OpGetSprintItem:
		var a getSprintItemArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.GetSprintItem(a.ItemID)
	case OpUpdateSprintItem:
		var a updateSprintItemArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.UpdateSprintItemStatus(a.ItemID, a.Status, a.Notes)
	case OpListItemsForUser:
		var a listItemsForUserArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.ListItemsForUser(a.UserID)
	case OpGetCanvas:
		var a getCanvasArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.GetCanvas(a.Kind)
	case OpUpdateCanvasSection:
		var a updateCanvasSectionArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.UpdateCanvasSection(a.Kind, a.Section, a.Patch)
	case OpGetSegments:
		return d.GetSegments()
	case OpUpdateSegment:
		var a updateSegmentArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.UpdateSegment(a.SegmentID, a.Patch)
	default:
		return nil, shared.Validation("unknown tool %q", call.Name)
	}
}

// ListSprintItems returns the full sprints document.
func (d *Dispatcher) ListSprintItems() (map[string]any, error) {
	return d.store.Load(docstore.DocSprints)
}

// GetSprintItem returns one sprint item by id, searching across sprints.
func (d *Dispatcher) GetSprintItem(itemID string) (map[string]any, error) {
	if itemID == "" {
		return nil, shared.Validation("item_id is required")
	}
	data, err := d.store.Load(docstore.DocSprints)
	if err != nil {
		return nil, err
	}
	item := findSprintItem(data, itemID)
	if item == nil {
		return nil, shared.NotFound("sprint item %q not found", itemID)
	}
	return item, nil
}

// UpdateSprintItemStatus sets the item's status and, only when non-empty,
// overwrites its notes. The load-find-write sequence runs under the sprints
// document's serialization point so concurrent status updates cannot clobber
// each other.
func (d *Dispatcher) UpdateSprintItemStatus(itemID, status, notes string) (map[string]any, error) {
	if itemID == "" {
		return nil, shared.Validation("item_id is required")
	}
	if !domain.ItemStatus(status).IsValid() {
		return nil, shared.Validation("invalid status %q", status)
	}

	var updated map[string]any
	_, err := d.store.Apply(docstore.DocSprints, func(data map[string]any) error {
		item := findSprintItem(data, itemID)
		if item == nil {
			return shared.NotFound("sprint item %q not found", itemID)
		}
		item["status"] = status
		if notes != "" {
			item["notes"] = notes
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("sprint item %q status updated to %q", itemID, status),
		"item":    updated,
	}, nil
}

// ListItemsForUser returns, per sprint, the items assigned to userID.
// Sprints without matching items are omitted.
func (d *Dispatcher) ListItemsForUser(userID string) (map[string]any, error) {
	if userID == "" {
		return nil, shared.Validation("user_id is required")
	}
	data, err := d.store.Load(docstore.DocSprints)
	if err != nil {
		return nil, err
	}

	var result []map[string]any
	total := 0
	for _, sprint := range sprintList(data) {
		var items []any
		for _, item := range itemList(sprint) {
			if m, ok := item.(map[string]any); ok && m["assignee"] == userID {
				items = append(items, m)
			}
		}
		if len(items) == 0 {
			continue
		}
		total += len(items)
		result = append(result, map[string]any{
			"sprint_id": sprint["sprint_id"],
			"title":     sprint["title"],
			"goal":      sprint["goal"],
			"items":     items,
		})
	}
	return map[string]any{
		"user_id":     userID,
		"sprints":     result,
		"total_items": total,
	}, nil
}

// GetCanvas returns the full canvas document for kind (bmc or vpc).
func (d *Dispatcher) GetCanvas(kind string) (map[string]any, error) {
	doc, err := canvasDoc(kind)
	if err != nil {
		return nil, err
	}
	return d.store.Load(doc)
}

// UpdateCanvasSection merges patch into a canvas section.
func (d *Dispatcher) UpdateCanvasSection(kind, section string, patch json.RawMessage) (map[string]any, error) {
	doc, err := canvasDoc(kind)
	if err != nil {
		return nil, err
	}
	if section == "" {
		return nil, shared.Validation("section is required")
	}
	if len(patch) == 0 {
		return nil, shared.Validation("patch is required")
	}
	updated, err := d.store.Update(doc, section, patch)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("canvas section %q updated", section),
		"section": section,
		"canvas":  updated,
	}, nil
}

// GetSegments returns the customer segments document.
func (d *Dispatcher) GetSegments() (map[string]any, error) {
	return d.store.Load(docstore.DocSegments)
}

// UpdateSegment merges patch into the segment with the given id.
func (d *Dispatcher) UpdateSegment(segmentID string, patch json.RawMessage) (map[string]any, error) {
	if segmentID == "" {
		return nil, shared.Validation("segment_id is required")
	}
	if len(patch) == 0 {
		return nil, shared.Validation("patch is required")
	}
	segment, err := d.store.UpdateByID(docstore.DocSegments, "customer_segments", segmentID, patch)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("customer segment %q updated", segmentID),
		"segment": segment,
	}, nil
}

func canvasDoc(kind string) (string, error) {
	switch kind {
	case CanvasBMC:
		return docstore.DocBMC, nil
	case CanvasVPC:
		return docstore.DocVPC, nil
	default:
		return "", shared.Validation("invalid canvas kind %q", kind)
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return shared.Validation("malformed tool arguments: %v", err)
	}
	return nil
}

func errorPayload(err error) json.RawMessage {
	kind := shared.KindOf(err)
	if kind == "" {
		kind = shared.KindValidation
	}
	raw, merr := json.Marshal(map[string]any{
		"error": map[string]any{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
	if merr != nil {
		return json.RawMessage(`{"error":{"kind":"validation","message":"unserializable error"}}`)
	}
	return raw
}

func sprintList(data map[string]any) []map[string]any {
	raw, _ := data["sprints"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, s := range raw {
		if m, ok := s.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func itemList(sprint map[string]any) []any {
	items, _ := sprint["items"].([]any)
	return items
}

func findSprintItem(data map[string]any, itemID string) map[string]any {
	for _, sprint := range sprintList(data) {
		for _, item := range itemList(sprint) {
			if m, ok := item.(map[string]any); ok && m["item_id"] == itemID {
				return m
			}
		}
	}
	return nil
}
