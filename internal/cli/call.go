package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/yolodolo42/scwkeyring/internal/router"
)

const cliOrigin = "scwkeyring-cli"

// call sends one keyring method through the app router, as the RPC server
// would.
func call(ctx context.Context, app *App, method string, params any) (any, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		raw = b
	}
	id, _ := json.Marshal(uuid.NewString())
	return app.Router.Handle(ctx, router.Request{
		Origin: cliOrigin,
		ID:     id,
		Method: method,
		Params: raw,
	})
}
