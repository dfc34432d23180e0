package azbus

import (
	"github.com/datatrails/go-datatrails-pump/logger"
)

// Logger is re-exported here so callers of this package don't need to
// import the logger package directly just to declare a field or
// parameter type.
type Logger = logger.Logger
