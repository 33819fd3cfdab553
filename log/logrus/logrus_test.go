package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/tierkv"
)

func TestFieldsAndError(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Info("opened", tierkv.Fields{"shards": 4})
	e := hook.LastEntry()
	if e.Level != logrus.InfoLevel || e.Message != "opened" {
		t.Fatalf("entry %+v", e)
	}
	if e.Data["component"] != "tierkv" || e.Data["shards"] != 4 {
		t.Fatalf("data %v", e.Data)
	}

	cause := errors.New("disk full")
	l.Error("flush", tierkv.Fields{"err": cause, "shard": 2})
	e = hook.LastEntry()
	if e.Level != logrus.ErrorLevel || e.Data[logrus.ErrorKey] != cause || e.Data["shard"] != 2 {
		t.Fatalf("entry %+v", e)
	}

	l.Debug("quiet", nil)
	if len(hook.AllEntries()) != 3 {
		t.Fatalf("entries=%d", len(hook.AllEntries()))
	}
}
