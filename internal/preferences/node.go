package preferences

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

const queryScript = `import { pathToFileURL } from "node:url";
const { AppOptions, OptionKind } = await import(pathToFileURL(process.argv[1]).href);
process.stdout.write(JSON.stringify(AppOptions.getAll(OptionKind.PREFERENCE)));
`

// NodeLoader imports the module in a Node.js process and asks AppOptions for every
// preference-kind option.
type NodeLoader struct {
	// Binary is the JavaScript runtime, "node" when empty.
	Binary string
}

// Load implements Loader.
func (n NodeLoader) Load(ctx context.Context, modulePath string) (Table, error) {
	bin := n.Binary
	if bin == "" {
		bin = "node"
	}
	// #nosec G204 - binary comes from configuration, script is constant
	cmd := exec.CommandContext(ctx, bin, "--input-type=module", "-e", queryScript, modulePath)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryExternalTool, "query preferences module").
			Fatal().
			WithContext("runtime", bin).
			WithContext("stderr", strings.TrimSpace(errBuf.String())).
			Build()
	}

	dec := json.NewDecoder(&outBuf)
	dec.UseNumber()
	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryExternalTool, "decode preferences output").
			Fatal().
			WithContext("runtime", bin).
			Build()
	}
	return t, nil
}
