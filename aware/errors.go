package aware

import "errors"

var errNoPixels = errors.New("image has no pixels")
