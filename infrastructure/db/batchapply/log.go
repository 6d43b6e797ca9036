package batchapply

import (
	"github.com/kaspanet/fedstore/infrastructure/logger"
	"github.com/kaspanet/fedstore/util/panics"
)

var log = logger.RegisterSubSystem("BAPL")
var spawn = panics.GoroutineWrapperFunc(log)
