package market

import "strings"

// MessageFromEnvelope builds a RawMessage from a decoded JSON or msgpack envelope
// shaped like {"tr_id": "...", "rows": [{...}]} or {"header": {"tr_id": ...}, "body": {"output": {...}}}.
func MessageFromEnvelope(payload map[string]any) (RawMessage, bool) {
	trID := stringFromMap(payload, "tr_id", "trId", "TR_ID")
	if trID == "" {
		if header, ok := toMap(payload["header"]); ok {
			trID = stringFromMap(header, "tr_id", "trId", "TR_ID")
		}
	}
	if trID == "" {
		return RawMessage{}, false
	}
	rows := rowsFromAny(payload["rows"])
	if len(rows) == 0 {
		if body, ok := toMap(payload["body"]); ok {
			rows = rowsFromAny(body["output"])
		}
	}
	if len(rows) == 0 {
		return RawMessage{}, false
	}
	return RawMessage{TrID: trID, Rows: rows}, true
}

// MessageFromDelimited decodes "<enc>|<tr_id>|<count>|v1^v2^..." frames. Only the
// leading len(columns) values of each record are named; the rest are ignored.
func MessageFromDelimited(frame string, columns map[string][]string) (RawMessage, bool) {
	parts := strings.SplitN(frame, "|", 4)
	if len(parts) != 4 {
		return RawMessage{}, false
	}
	trID := strings.TrimSpace(parts[1])
	names := columns[trID]
	if len(names) == 0 {
		return RawMessage{}, false
	}
	count := 1
	if f, ok := floatFromAny(parts[2]); ok && f >= 1 {
		count = int(f)
	}
	values := strings.Split(parts[3], "^")
	stride := len(values) / count
	if stride == 0 {
		return RawMessage{}, false
	}
	rows := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		record := values[i*stride : (i+1)*stride]
		row := make(map[string]any, len(names))
		for j, name := range names {
			if j >= len(record) {
				break
			}
			row[name] = record[j]
		}
		rows = append(rows, row)
	}
	return RawMessage{TrID: trID, Rows: rows}, true
}

func rowsFromAny(v any) []map[string]any {
	if m, ok := toMap(v); ok {
		return []map[string]any{m}
	}
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := toMap(item); ok {
			rows = append(rows, m)
		}
	}
	return rows
}
