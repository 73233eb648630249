//go:build windows

package firewall

import (
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
)

// Values from icftypes.h.
const (
	netFwIPProtocolAny int32 = 256
	netFwRuleDirOut    int32 = 2
	netFwActionBlock   int32 = 0
)

// HRESULTs tolerated by CoInitializeEx.
const (
	sFalse          = 0x00000001
	rpcEChangedMode = 0x80010106
)

// WindowsFirewall keeps a single outbound block rule scoped to the game
// executable in the active Windows Firewall policy.
type WindowsFirewall struct {
	name    string
	appPath string
	log     *logging.Logger
}

// New returns the Windows Firewall rule compiler. The caller must be
// elevated before calling Install or Teardown.
func New(opts Options) (Firewall, error) {
	return &WindowsFirewall{
		name:    opts.name(),
		appPath: opts.AppPath,
		log:     opts.logger(),
	}, nil
}

// Install removes any previous rule and adds one blocking every block. An
// empty set installs nothing: a rule without remote addresses would block
// all of the game's traffic.
func (w *WindowsFirewall) Install(blocks BlockSet) error {
	if w.appPath == "" {
		return errors.New(errors.KindValidation, "game executable path is required")
	}
	return w.withRules(func(rules *ole.IDispatch) error {
		if err := w.remove(rules); err != nil {
			return err
		}
		if len(blocks) == 0 {
			w.log.Info("no blocks selected, rule not installed", "rule", w.name)
			return nil
		}

		unknown, err := oleutil.CreateObject("HNetCfg.FWRule")
		if err != nil {
			return errors.Wrap(err, errors.KindFirewall, "failed to create firewall rule")
		}
		defer unknown.Release()

		rule, err := unknown.QueryInterface(ole.IID_IDispatch)
		if err != nil {
			return errors.Wrap(err, errors.KindFirewall, "failed to query firewall rule")
		}
		defer rule.Release()

		props := []struct {
			name  string
			value any
		}{
			{"Name", w.name},
			{"Description", ""},
			{"ApplicationName", w.appPath},
			{"Protocol", netFwIPProtocolAny},
			{"RemoteAddresses", blocks.RemoteAddresses()},
			{"Enabled", true},
			{"Direction", netFwRuleDirOut},
			{"Action", netFwActionBlock},
		}
		for _, p := range props {
			if _, err := oleutil.PutProperty(rule, p.name, p.value); err != nil {
				return errors.Wrapf(err, errors.KindFirewall, "failed to set rule %s", p.name)
			}
		}

		if _, err := oleutil.CallMethod(rules, "Add", rule); err != nil {
			return errors.Wrap(err, errors.KindFirewall, "failed to add firewall rule")
		}

		w.log.Info("installed firewall rule", "rule", w.name, "app", w.appPath, "blocks", len(blocks))
		return nil
	})
}

// Teardown removes the rule by name.
func (w *WindowsFirewall) Teardown() error {
	return w.withRules(w.remove)
}

// remove deletes the rule by name. INetFwRules.Remove succeeds when no
// rule has that name.
func (w *WindowsFirewall) remove(rules *ole.IDispatch) error {
	if _, err := oleutil.CallMethod(rules, "Remove", w.name); err != nil {
		return errors.Wrap(err, errors.KindFirewall, "failed to remove firewall rule")
	}
	return nil
}

// withRules runs fn against INetFwPolicy2.Rules. COM is initialised for
// the duration of the call on a locked OS thread and released on every
// path once it was acquired.
func (w *WindowsFirewall) withRules(fn func(rules *ole.IDispatch) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		switch hresult(err) {
		case sFalse:
			defer ole.CoUninitialize()
		case rpcEChangedMode:
			// initialised elsewhere with another model; not ours to release
		default:
			return errors.Wrap(err, errors.KindFirewall, "failed to initialize COM")
		}
	} else {
		defer ole.CoUninitialize()
	}

	unknown, err := oleutil.CreateObject("HNetCfg.FwPolicy2")
	if err != nil {
		return errors.Wrap(err, errors.KindFirewall, "failed to create firewall policy")
	}
	defer unknown.Release()

	policy, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return errors.Wrap(err, errors.KindFirewall, "failed to query firewall policy")
	}
	defer policy.Release()

	rulesVar, err := oleutil.GetProperty(policy, "Rules")
	if err != nil {
		return errors.Wrap(err, errors.KindFirewall, "failed to get firewall rules")
	}
	defer rulesVar.Clear()

	return fn(rulesVar.ToIDispatch())
}

func hresult(err error) uintptr {
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		return oleErr.Code()
	}
	return 0
}
