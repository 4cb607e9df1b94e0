package output

import (
	"encoding/json"

	"github.com/jaxxstorm/dhtingest/internal/model"
)

func RenderJSON(summary model.RunSummary) (string, error) {
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
