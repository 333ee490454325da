// Package leaderboard submits finished runs to a remote score service.
// Every call is best-effort; gameplay never waits on it.
package leaderboard

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Entry is one scored run.
type Entry struct {
	Name  string    `json:"name"`
	Score int       `json:"score"`
	RunID string    `json:"runId,omitempty"`
	At    time.Time `json:"at"`
}

func (e Entry) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"name":  e.Name,
		"score": float64(e.Score),
		"runId": e.RunID,
		"at":    e.At.UTC().Format(time.RFC3339),
	})
}

func entryFromStruct(s *structpb.Struct) (Entry, error) {
	f := s.GetFields()
	e := Entry{
		Name:  f["name"].GetStringValue(),
		Score: int(f["score"].GetNumberValue()),
		RunID: f["runId"].GetStringValue(),
	}
	if at := f["at"].GetStringValue(); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return Entry{}, fmt.Errorf("entry %q: bad timestamp: %w", e.Name, err)
		}
		e.At = t
	}
	return e, nil
}

func entriesFromStruct(s *structpb.Struct) ([]Entry, error) {
	list := s.GetFields()["entries"].GetListValue().GetValues()
	out := make([]Entry, 0, len(list))
	for _, v := range list {
		e, err := entryFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func entriesToStruct(entries []Entry) (*structpb.Struct, error) {
	vals := make([]*structpb.Value, 0, len(entries))
	for _, e := range entries {
		s, err := e.toStruct()
		if err != nil {
			return nil, err
		}
		vals = append(vals, structpb.NewStructValue(s))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"entries": structpb.NewListValue(&structpb.ListValue{Values: vals}),
	}}, nil
}
