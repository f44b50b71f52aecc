package proxy

import (
	"errors"
	"fmt"
	"net"
	"time"

	"wgobfs/internal/flog"
	"wgobfs/internal/obfs"
	"wgobfs/internal/pkg/buffer"
)

// session is one downstream peer's NAT entry: a dedicated upstream socket
// plus the return path to the peer. Expired by read deadline on idle.
type session struct {
	downstream *net.UDPAddr
	conn       *net.UDPConn
}

// session returns the existing session for addr or dials a new upstream
// socket for it.
func (p *Proxy) session(addr *net.UDPAddr) (*session, error) {
	key := addr.String()

	p.mu.Lock()
	defer p.mu.Unlock()
	if sess, ok := p.sessions[key]; ok {
		return sess, nil
	}

	conn, err := net.DialUDP("udp", nil, p.cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial upstream %s: %w", p.cfg.Server.Addr, err)
	}
	sess := &session{
		downstream: addr,
		conn:       conn,
	}
	p.sessions[key] = sess
	flog.Debugf("New session %s -> %s (%d active)", key, p.cfg.Server.Addr, len(p.sessions))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.relayUpstream(sess)
	}()
	return sess, nil
}

// relayUpstream pumps return traffic for one session back to its
// downstream peer until the session idles out or the proxy shuts down.
func (p *Proxy) relayUpstream(sess *session) {
	defer p.dropSession(sess)

	bufp := buffer.DPool.Get().(*[]byte)
	defer buffer.DPool.Put(bufp)
	buf := *bufp
	readLimit := len(buf) - p.obfs.Overhead()

	for {
		if err := sess.conn.SetReadDeadline(time.Now().Add(p.idleTimeout())); err != nil {
			return
		}
		n, err := sess.conn.Read(buf[:readLimit])
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				flog.Debugf("Session %s idle, expiring", sess.downstream)
			} else if !errors.Is(err, net.ErrClosed) {
				flog.Debugf("Session %s upstream read failed: %v", sess.downstream, err)
			}
			return
		}

		res, err := p.inbound(buf, n)
		if err != nil {
			flog.Debugf("Dropping %d-byte upstream datagram for %s: %v", n, sess.downstream, err)
			continue
		}
		switch res.Verdict {
		case obfs.VerdictDrop:
			continue
		case obfs.VerdictReject:
			continue
		}

		if _, err := p.conn.WriteToUDP(buf[:res.Length], sess.downstream); err != nil {
			flog.Debugf("Downstream write for %s failed: %v", sess.downstream, err)
		}
	}
}

func (p *Proxy) dropSession(sess *session) {
	p.mu.Lock()
	delete(p.sessions, sess.downstream.String())
	p.mu.Unlock()
	sess.conn.Close()
}

func (p *Proxy) closeSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sess := range p.sessions {
		sess.conn.Close()
	}
}
