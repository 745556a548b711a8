package main

import (
	"time"

	"github.com/vcsflow/stacker/pkg/eventlog"
)

func transactionID(label string) string {
	return eventlog.MakeTransactionID(time.Now(), label)
}
