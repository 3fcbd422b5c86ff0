package window

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/refviewer/internal/logger"
)

// maxParentWalk bounds the climb from a focused child window to the
// top-level window carrying _NET_WM_PID
const maxParentWalk = 8

// EWMH _NET_WM_STATE actions
const (
	netWMStateRemove = 0
	netWMStateAdd    = 1
)

// X11Backend answers foreground-process queries and manages the stacking of
// this process's own windows through EWMH.
type X11Backend struct {
	conn     *xgb.Conn
	root     xproto.Window
	procRoot string
	pid      int

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewX11Backend connects to the X server named by $DISPLAY
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &X11Backend{
		conn:     conn,
		root:     screen.Root,
		procRoot: DefaultProcRoot,
		pid:      os.Getpid(),
		atoms:    make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// ForegroundProcess resolves the executable name of the process owning the
// active window. The WM_CLASS instance is used when the window has no PID or
// the PID cannot be resolved.
func (b *X11Backend) ForegroundProcess() (string, error) {
	win, err := b.activeWindow()
	if err != nil {
		return "", err
	}

	pid, class := b.owner(win)
	if pid > 0 {
		name, err := processName(b.procRoot, pid)
		if err == nil {
			return name, nil
		}
		logger.WithComponent("x11-backend").Debug().
			Int("pid", pid).
			Err(err).
			Msg("Failed to resolve process name, using WM_CLASS")
	}
	if class != "" {
		return class, nil
	}
	return "", ErrNoForeground
}

// SetAbove adds or removes _NET_WM_STATE_ABOVE on every client window
// belonging to this process
func (b *X11Backend) SetAbove(above bool) error {
	windows, err := b.ownWindows()
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return fmt.Errorf("no windows owned by pid %d", b.pid)
	}

	stateAtom, err := b.getAtom("_NET_WM_STATE")
	if err != nil {
		return fmt.Errorf("failed to get _NET_WM_STATE atom: %w", err)
	}
	aboveAtom, err := b.getAtom("_NET_WM_STATE_ABOVE")
	if err != nil {
		return fmt.Errorf("failed to get _NET_WM_STATE_ABOVE atom: %w", err)
	}

	action := uint32(netWMStateRemove)
	if above {
		action = netWMStateAdd
	}

	mask := uint32(xproto.EventMaskSubstructureNotify | xproto.EventMaskSubstructureRedirect)
	for _, win := range windows {
		ev := xproto.ClientMessageEvent{
			Format: 32,
			Window: win,
			Type:   stateAtom,
			Data:   xproto.ClientMessageDataUnionData32New([]uint32{action, uint32(aboveAtom), 0, 1, 0}),
		}
		if err := xproto.SendEventChecked(b.conn, false, b.root, mask, string(ev.Bytes())).Check(); err != nil {
			return fmt.Errorf("failed to send _NET_WM_STATE to window %d: %w", win, err)
		}
	}

	logger.WithComponent("x11-backend").Debug().
		Bool("above", above).
		Int("windows", len(windows)).
		Msg("Updated window stacking")
	return nil
}

// activeWindow reads _NET_ACTIVE_WINDOW, falling back to the input focus for
// window managers without EWMH support
func (b *X11Backend) activeWindow() (xproto.Window, error) {
	if atom, err := b.getAtom("_NET_ACTIVE_WINDOW"); err == nil {
		reply, err := xproto.GetProperty(b.conn, false, b.root, atom, xproto.AtomWindow, 0, 1).Reply()
		if err == nil && len(reply.Value) >= 4 {
			if win := xproto.Window(xgb.Get32(reply.Value)); win != 0 {
				return win, nil
			}
		}
	}

	focus, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get input focus: %w", err)
	}
	if focus.Focus == xproto.InputFocusNone || focus.Focus == xproto.InputFocusPointerRoot || focus.Focus == b.root {
		return 0, ErrNoForeground
	}
	return focus.Focus, nil
}

// owner climbs from win towards the root until a window carries a PID. The
// first WM_CLASS seen along the way is returned as a fallback.
func (b *X11Backend) owner(win xproto.Window) (int, string) {
	var class string
	for i := 0; i < maxParentWalk && win != 0 && win != b.root; i++ {
		if class == "" {
			class = b.windowClass(win)
		}
		if pid := b.windowPID(win); pid > 0 {
			return pid, class
		}
		tree, err := xproto.QueryTree(b.conn, win).Reply()
		if err != nil {
			break
		}
		win = tree.Parent
	}
	return 0, class
}

// ownWindows lists the windows in _NET_CLIENT_LIST whose _NET_WM_PID is ours
func (b *X11Backend) ownWindows() ([]xproto.Window, error) {
	clientListAtom, err := b.getAtom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST atom: %w", err)
	}

	reply, err := xproto.GetProperty(b.conn, false, b.root, clientListAtom, xproto.AtomWindow, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	var windows []xproto.Window
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		win := xproto.Window(xgb.Get32(reply.Value[i:]))
		if b.windowPID(win) == b.pid {
			windows = append(windows, win)
		}
	}
	return windows, nil
}

func (b *X11Backend) windowPID(win xproto.Window) int {
	pidAtom, err := b.getAtom("_NET_WM_PID")
	if err != nil {
		return 0
	}
	reply, err := xproto.GetProperty(b.conn, false, win, pidAtom, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0
	}
	return int(xgb.Get32(reply.Value))
}

func (b *X11Backend) windowClass(win xproto.Window) string {
	classAtom, err := b.getAtom("WM_CLASS")
	if err != nil {
		return ""
	}
	raw, err := b.getProperty(win, classAtom)
	if err != nil {
		return ""
	}
	return parseWMClass(raw)
}

// getAtom gets an atom ID by name, caching the answer
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	b.mu.Lock()
	atom, ok := b.atoms[name]
	b.mu.Unlock()
	if ok {
		return atom, nil
	}

	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.atoms[name] = reply.Atom
	b.mu.Unlock()
	return reply.Atom, nil
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}

	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}

	return string(reply.Value), nil
}
