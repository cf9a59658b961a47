package vm

import "github.com/tliron/commonlog"

var (
	registryLog  = commonlog.GetLogger("mop.registry")
	metaclassLog = commonlog.GetLogger("mop.metaclass")
	dispatchLog  = commonlog.GetLogger("mop.dispatch")
)
