package httpapi

import (
	"errors"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/prismwall/prismd/internal/prism/types"
)

// Rows and grants travel as structpb values so protobuf clients need no
// generated code. Field names match the JSON encoding.

// ── Wallpapers ───────────────────────────────────────────────────────────────

func rowsToProto(rows []types.WallpaperRow) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(rows))}
	for _, row := range rows {
		uri := structpb.NewNullValue()
		if row.URI != nil {
			uri = structpb.NewStringValue(*row.URI)
		}
		out.Values = append(out.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"_id":  structpb.NewNumberValue(float64(row.RowID)),
				"type": structpb.NewStringValue(row.Type),
				"key":  structpb.NewNumberValue(float64(row.Key)),
				"uri":  uri,
			},
		}))
	}
	return out
}

func rowsFromProto(lv *structpb.ListValue) []types.WallpaperRow {
	rows := make([]types.WallpaperRow, 0, len(lv.GetValues()))
	for _, v := range lv.GetValues() {
		f := v.GetStructValue().GetFields()
		row := types.WallpaperRow{
			RowID: int(f["_id"].GetNumberValue()),
			Type:  f["type"].GetStringValue(),
			Key:   int(f["key"].GetNumberValue()),
		}
		if u, ok := f["uri"].GetKind().(*structpb.Value_StringValue); ok {
			s := u.StringValue
			row.URI = &s
		}
		rows = append(rows, row)
	}
	return rows
}

// ── Grants ───────────────────────────────────────────────────────────────────

func grantsToProto(list []types.CallerGrant) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(list))}
	for _, g := range list {
		out.Values = append(out.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"identity":      structpb.NewStringValue(g.Identity),
				"allowed":       structpb.NewBoolValue(g.Allowed),
				"request_count": structpb.NewNumberValue(float64(g.RequestCount)),
				"last_accessed": structpb.NewStringValue(g.LastAccessed.UTC().Format(time.RFC3339Nano)),
			},
		}))
	}
	return out
}

// ── Approvals ────────────────────────────────────────────────────────────────

var errBadApproval = errors.New("approval message must be a struct")

func approvalFromProto(s *structpb.Struct) (types.ApprovalMessage, error) {
	if s == nil {
		return types.ApprovalMessage{}, errBadApproval
	}
	f := s.GetFields()
	return types.ApprovalMessage{
		Action:         f["action"].GetStringValue(),
		NotificationID: int(f["notification_id"].GetNumberValue()),
		Caller:         f["caller"].GetStringValue(),
	}, nil
}

func approvalToProto(m types.ApprovalMessage) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"action":          structpb.NewStringValue(m.Action),
		"notification_id": structpb.NewNumberValue(float64(m.NotificationID)),
		"caller":          structpb.NewStringValue(m.Caller),
	}}
}
