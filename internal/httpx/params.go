package httpx

import (
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

// paramsScriptPattern locates the params script block regardless of
// attribute order (id before type, or type before id), mirroring the
// dual-pattern regex the target's original client used.
var paramsScriptPattern = regexp.MustCompile(
	`(?is)<script[^>]+id=["']params["'][^>]+type=["']application/json["'][^>]*>(.*?)</script>` +
		`|<script[^>]+type=["']application/json["'][^>]+id=["']params["'][^>]*>(.*?)</script>`,
)

// ExtractParams locates the <script id="params" type="application/json">
// block embedded in an HTML response and parses its contents as JSON.
func ExtractParams(html []byte) (gjson.Result, error) {
	m := paramsScriptPattern.FindSubmatch(html)
	if m == nil {
		return gjson.Result{}, fmt.Errorf("httpx: no params script found in response")
	}
	inner := m[1]
	if len(inner) == 0 {
		inner = m[2]
	}
	if !gjson.ValidBytes(inner) {
		return gjson.Result{}, fmt.Errorf("httpx: params script contents are not valid JSON")
	}
	return gjson.ParseBytes(inner), nil
}

// DecodeBase64JSON base64-decodes encoded and parses the result as JSON.
// The target embeds sub-fields (rawsps, rawp) this way inside the params
// block.
func DecodeBase64JSON(encoded string) (gjson.Result, error) {
	if encoded == "" {
		return gjson.Result{}, fmt.Errorf("httpx: empty base64 field")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// The target sometimes omits padding; retry with raw encoding
		// before giving up.
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("httpx: decode base64 field: %w", err)
		}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("httpx: decoded field is not valid JSON")
	}
	return gjson.ParseBytes(raw), nil
}
