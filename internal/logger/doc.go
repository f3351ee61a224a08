// Package logger provides the structured logging interface used across the
// ingestion worker, plus two implementations: SimpleLogger (text, stdlib
// log.Println) and ZapLogger (JSON, go.uber.org/zap).
//
// Every call site passes fields as a map:
//
//	log.Info("polling endpoint", map[string]interface{}{
//	    "endpoint": ep.ID,
//	    "cursor":   cursor,
//	})
//
// Child loggers carry fields forward:
//
//	epLog := log.WithField("endpoint", ep.ID)
//	epLog.Warn("retry exhausted", map[string]interface{}{"attempts": 3})
package logger
