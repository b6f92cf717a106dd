package record

import (
	"encoding/json"
	"fmt"
)

// Envelope is the sink request body for one batch: {"<kind>": [...]}.
func Envelope(kind Kind, records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(map[string][]Record{string(kind): records})
}

// Decode parses one wire-format record of the given kind.
func Decode(kind Kind, data []byte) (Record, error) {
	switch kind {
	case KindCourses:
		return decodeAs[Course](kind, data)
	case KindSchedules:
		return decodeAs[ScheduleEntry](kind, data)
	case KindProfessors:
		return decodeAs[Professor](kind, data)
	case KindSyllabi:
		return decodeAs[Syllabus](kind, data)
	case KindComponents:
		return decodeAs[Component](kind, data)
	case KindStructures:
		return decodeAs[Structure](kind, data)
	}
	return nil, fmt.Errorf("decode: unknown kind %q", kind)
}

func decodeAs[T Record](kind Kind, data []byte) (Record, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return v, nil
}
