package registry

import (
	"github.com/agenthands/namereg/pkg/core"
)

type Config = core.Config
type CatalogConfig = core.CatalogConfig
type JournalConfig = core.JournalConfig
type TransformConfig = core.TransformConfig
type LimitsConfig = core.LimitsConfig
type PolicyConfig = core.PolicyConfig
type LogConfig = core.LogConfig
