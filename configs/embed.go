package configs

import _ "embed"

// Screens is the default screen catalog.
//
//go:embed screens.yaml
var Screens []byte
