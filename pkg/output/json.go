package output

import (
	"encoding/json"
)

type JSONFormatter struct {
	Pretty bool
}

func (f *JSONFormatter) Format(report *Report) ([]byte, error) {
	if f.Pretty {
		return json.MarshalIndent(report, "", "  ")
	}
	return json.Marshal(report)
}
