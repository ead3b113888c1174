package council

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

var errNoJSON = errors.New("reply is not a JSON object")

// ParseReview decodes a reviewer reply: the whole text first, then the outermost {...} region.
func ParseReview(raw string) (types.Review, error) {
	if r, err := decodeObject(trimFence(raw)); err == nil {
		return r, nil
	}
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return types.Review{}, errNoJSON
	}
	return decodeObject(raw[start : end+1])
}

func decodeObject(s string) (types.Review, error) {
	if !strings.HasPrefix(s, "{") {
		return types.Review{}, errNoJSON
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var r types.Review
	if err := dec.Decode(&r); err != nil {
		return types.Review{}, err
	}
	if dec.More() {
		return types.Review{}, errNoJSON
	}
	return r, nil
}
