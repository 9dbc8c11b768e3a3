package media

import (
	"context"
	"io/ioutil"

	yall "yall.in"
	"yall.in/colour"
)

var discard = yall.New(colour.New(ioutil.Discard, yall.Debug))

// loggerFrom returns the logger stored in ctx, or one that drops
// everything when the caller did not set one up.
func loggerFrom(ctx context.Context) *yall.Logger {
	if l := yall.FromContext(ctx); l != nil {
		return l
	}
	return discard
}
