package sip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/errcode"
	"github.com/embeddedsip/uacore/pkg/ice"
	"github.com/embeddedsip/uacore/pkg/media"
	"github.com/embeddedsip/uacore/pkg/metrics"
	"github.com/embeddedsip/uacore/pkg/transport"
)

// Agent is the SIP Agent of spec §4.3: it owns a UDP transport, a sipgo
// stack built on top of it, the registration state machine, and every
// Dialog it creates or accepts.
type Agent struct {
	mu sync.Mutex

	cfg     Config
	handler Handler
	log     zerolog.Logger

	mediaTemplate media.Config

	ua        *sipgo.UserAgent
	server    *sipgo.Server
	client    *sipgo.Client
	dialogCli *sipgo.DialogClientCache
	dialogSrv *sipgo.DialogServerCache

	bindAddr string
	contact  sip.ContactHeader

	dialogs map[string]*Dialog

	reg   *registration
	wheel *timerWheel
	met   *metrics.Registry

	listenCtx    context.Context
	listenCancel context.CancelFunc
}

// New implements spec §4.3's create(config, handler): it creates a UDP
// Transport bound to an ephemeral port to learn the Agent's bound
// address, then hands that address to sipgo's own listener — sipgo owns
// the socket from that point on, the same split the teacher's
// NewUserAgent/ListenAndServe pairing uses.
func New(cfg Config, mediaTemplate media.Config, handler Handler) (*Agent, error) {
	cfg = defaultConfig(cfg)

	probe, err := transport.New(transport.Config{Kind: transport.KindUDP, BindAddr: "0.0.0.0", BindPort: 0}, func([]byte, transport.Address) {}, cfg.Log)
	if err != nil {
		return nil, errcode.New(errcode.ErrTransportCreateFailed, err)
	}
	if err := probe.Open(); err != nil {
		return nil, errcode.New(errcode.ErrTransportCreateFailed, err)
	}
	bindAddr := probe.LocalAddr().String()
	_ = probe.Close()

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, errcode.New(errcode.ErrSIPCreateFailed, err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, errcode.New(errcode.ErrSIPCreateFailed, err)
	}
	cli, err := sipgo.NewClient(ua)
	if err != nil {
		return nil, errcode.New(errcode.ErrSIPCreateFailed, err)
	}

	contact := sip.ContactHeader{
		Address: sip.Uri{User: cfg.Username, Host: bindHost(bindAddr), Port: bindPort(bindAddr)},
	}

	a := &Agent{
		cfg:           cfg,
		handler:       handler,
		log:           cfg.Log,
		mediaTemplate: mediaTemplate,
		ua:            ua,
		server:        srv,
		client:        cli,
		dialogCli:     sipgo.NewDialogClientCache(cli, contact),
		dialogSrv:     sipgo.NewDialogServerCache(cli, contact),
		bindAddr:      bindAddr,
		contact:       contact,
		dialogs:       make(map[string]*Dialog),
		reg:           newRegistration(),
		wheel:         acquireSharedWheel(),
		met:           metrics.Default(),
	}

	a.installServerHandlers()

	return a, nil
}

func (a *Agent) installServerHandlers() {
	a.server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) {
		a.handleIncomingInvite(req, tx)
	})
	a.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {
		if d := a.lookupByCallID(req.CallID().Value()); d != nil {
			_ = a.dialogSrv.ReadAck(req, tx)
			_ = d.transition("answer")
			if d.mediaSession != nil {
				_ = d.mediaSession.StartICE(ice.RoleControlled)
			}
		}
	})
	a.server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) {
		callID := req.CallID().Value()
		if d := a.lookupByCallID(callID); d != nil {
			_ = a.dialogSrv.ReadBye(req, tx)
			a.terminateDialog(d, "bye")
		}
	})
	a.server.OnCancel(func(req *sip.Request, tx sip.ServerTransaction) {
		callID := req.CallID().Value()
		if d := a.lookupByCallID(callID); d != nil {
			a.terminateDialog(d, "cancelled")
		}
		tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	})
}

// Start implements spec §4.3's start(): issues REGISTER when
// auto-register is set.
func (a *Agent) Start(ctx context.Context) error {
	a.listenCtx, a.listenCancel = context.WithCancel(ctx)
	go func() {
		if err := a.server.ListenAndServe(a.listenCtx, "udp", a.bindAddr); err != nil {
			a.raiseError(ErrKindTransportCreateFailed, err.Error())
		}
	}()

	if a.cfg.AutoRegister {
		return a.register(ctx)
	}
	return nil
}

func (a *Agent) registrarURI() sip.Uri {
	return sip.Uri{Host: a.cfg.RegistrarHost, Port: a.cfg.RegistrarPort}
}

func (a *Agent) fromURI() sip.Uri {
	return sip.Uri{User: a.cfg.Username, Host: a.cfg.Domain}
}

// register sends a REGISTER, handling a single digest-auth retry per
// spec §4.3's "Authentication" paragraph.
func (a *Agent) register(ctx context.Context) error {
	event := "start"
	if a.reg.State() == RegStateRegistered {
		event = "renew"
	}
	if err := a.reg.transition(event); err != nil {
		return errcode.New(errcode.ErrSIPInvalidState, err)
	}

	req := a.buildRegister(uint32(a.cfg.RegisterExpires))
	status, err := a.sendAuthenticated(ctx, req, &a.reg.auth)
	if err != nil {
		_ = a.reg.transition("failure")
		a.notifyRegisterResult(false, status)
		a.raiseError(ErrKindSIPRegisterFailed, err.Error())
		return err
	}

	if status == 423 {
		// Interval Too Brief: retry once with twice the configured
		// expiry. The response's Min-Expires header is not read.
		req = a.buildRegister(uint32(a.cfg.RegisterExpires) * 2)
		status, err = a.sendAuthenticated(ctx, req, &a.reg.auth)
		if err != nil {
			_ = a.reg.transition("failure")
			a.notifyRegisterResult(false, status)
			return err
		}
	}

	if status < 200 || status >= 300 {
		_ = a.reg.transition("failure")
		a.notifyRegisterResult(false, status)
		return errcode.New(errcode.ErrSIPRegisterFailed, fmt.Errorf("REGISTER failed with status %d", status))
	}

	_ = a.reg.transition("success")
	a.notifyRegisterResult(true, status)
	a.scheduleReregister()
	return nil
}

func (a *Agent) buildRegister(expires uint32) *sip.Request {
	req := sip.NewRequest(sip.REGISTER, a.registrarURI())
	req.AppendHeader(sip.NewHeader("To", a.fromURI().String()))
	req.AppendHeader(sip.NewHeader("From", a.fromURI().String()))
	req.AppendHeader(sip.NewHeader("Contact", a.contact.String()))
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expires)))
	req.AppendHeader(sip.NewHeader("User-Agent", a.cfg.UserAgent))
	return req
}

// sendAuthenticated sends req, and on a 401/407 challenge computes a
// digest Authorization header and resends exactly once, per spec §4.3.
func (a *Agent) sendAuthenticated(ctx context.Context, req *sip.Request, auth *authState) (int, error) {
	tx, err := a.client.TransactionRequest(ctx, req)
	if err != nil {
		return 0, errcode.New(errcode.ErrSIPSendFailed, err)
	}

	res, err := waitFinalResponse(ctx, tx)
	if err != nil {
		return 0, err
	}

	if (res.StatusCode == 401 || res.StatusCode == 407) && auth.shouldRetry() {
		auth.markAttempted()

		headerName := "WWW-Authenticate"
		if res.StatusCode == 407 {
			headerName = "Proxy-Authenticate"
		}
		challenge := res.GetHeader(headerName)
		if challenge == nil {
			return res.StatusCode, errcode.New(errcode.ErrSIPAuthFailed, fmt.Errorf("%d without %s", res.StatusCode, headerName))
		}

		authHeader, err := buildDigestAuthorization(challenge.Value(), string(req.Method), req.Recipient.String(), a.cfg.Username, a.cfg.Password)
		if err != nil {
			a.raiseError(ErrKindSIPAuthFailed, err.Error())
			return res.StatusCode, err
		}

		authHeaderName := "Authorization"
		if res.StatusCode == 407 {
			authHeaderName = "Proxy-Authorization"
		}
		retry := req.Clone()
		retry.RemoveHeader(authHeaderName)
		retry.AppendHeader(sip.NewHeader(authHeaderName, authHeader))
		incrementCSeq(retry)

		tx, err = a.client.TransactionRequest(ctx, retry)
		if err != nil {
			return 0, errcode.New(errcode.ErrSIPSendFailed, err)
		}
		res, err = waitFinalResponse(ctx, tx)
		if err != nil {
			return 0, err
		}
	}

	return res.StatusCode, nil
}

func waitFinalResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	for {
		select {
		case res := <-tx.Responses():
			if res == nil {
				return nil, errcode.New(errcode.ErrSIPTimeout, fmt.Errorf("transaction closed without a response"))
			}
			if res.StatusCode < 200 {
				continue
			}
			return res, nil
		case <-tx.Done():
			return nil, errcode.New(errcode.ErrSIPTimeout, fmt.Errorf("transaction ended without a final response"))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func incrementCSeq(req *sip.Request) {
	if cseq := req.CSeq(); cseq != nil {
		cseq.SeqNo++
	}
}

func (a *Agent) scheduleReregister() {
	delay := registerRetryDelay(a.cfg.RegisterExpires)
	id, err := a.wheel.Schedule(time.Now().Add(delay), func() {
		_ = a.register(context.Background())
	})
	if err != nil {
		a.raiseError(ErrKindTimerFailed, err.Error())
		return
	}
	a.mu.Lock()
	a.reg.timerID = id
	a.mu.Unlock()
}

// MakeCall implements spec §4.3's make_call(target-uri): the Dialog is
// returned immediately, before the INVITE is sent; the INVITE is
// composed once the Media Session's sdp-ready fires.
func (a *Agent) MakeCall(target sip.Uri) (*Dialog, error) {
	d := newOutgoingDialog(a, target)
	// The real Call-ID is only known once sipgo's DialogClientCache opens
	// the INVITE transaction in onOutgoingSDPReady; until then the dialog
	// table is keyed by a process-unique placeholder so a pending call
	// can still be looked up (e.g. for CancelCall) before the SDP offer
	// is ready to send.
	pendingKey := "pending-" + uuid.NewString()
	d.callID = pendingKey

	ms, err := media.New(a.mediaTemplate, media.Handler{
		OnSDPReady: func(sdp string) { a.onOutgoingSDPReady(d, sdp) },
		OnError:    func(err error) { a.raiseError(ErrKindMediaSDPFailed, err.Error()) },
	})
	if err != nil {
		return nil, errcode.New(errcode.ErrMediaSDPFailed, err)
	}
	d.mediaSession = ms

	if err := d.transition("invite"); err != nil {
		return nil, errcode.New(errcode.ErrSIPInvalidState, err)
	}

	if err := ms.GatherCandidates(); err != nil {
		return nil, errcode.New(errcode.ErrMediaICEFailed, err)
	}

	a.mu.Lock()
	a.dialogs[pendingKey] = d
	a.mu.Unlock()
	a.met.DialogsActive.Inc()

	return d, nil
}

func (a *Agent) onOutgoingSDPReady(d *Dialog, sdp string) {
	ctx := context.Background()
	pendingKey := d.CallID()
	session, err := a.dialogCli.Invite(ctx, d.remoteTarget, []byte(sdp))
	if err != nil {
		_ = d.transition("call_failed")
		a.terminateDialog(d, "fail_terminate")
		a.raiseError(ErrKindSIPCallFailed, err.Error())
		return
	}
	d.clientSession = session
	d.callID = session.ID

	a.mu.Lock()
	delete(a.dialogs, pendingKey)
	a.dialogs[d.callID] = d
	a.mu.Unlock()

	go a.watchInviteResult(d)
}

func (a *Agent) watchInviteResult(d *Dialog) {
	if err := d.clientSession.WaitAnswer(context.Background()); err != nil {
		_ = d.transition("call_failed")
		a.terminateDialog(d, "fail_terminate")
		return
	}

	remoteSDP := d.clientSession.InviteResponse.Body()
	if d.mediaSession != nil && remoteSDP != nil {
		_ = d.mediaSession.SetRemoteSDP(string(remoteSDP))
		_ = d.mediaSession.StartICE(ice.RoleControlling)
	}

	_ = d.clientSession.Ack(context.Background())
	_ = d.transition("answered")
}

// handleIncomingInvite is the incoming-call path spec §4.3 describes:
// extract the From URI, create a Dialog in incoming, create the Media
// Session, set its remote SDP, fire incoming-call.
func (a *Agent) handleIncomingInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()

	if existing := a.lookupByCallID(callID); existing != nil {
		// Retransmission of an INVITE already being processed: spec
		// §4.3 says to auto-reply 180 Ringing.
		tx.Respond(sip.NewResponseFromRequest(req, 180, "Ringing", nil))
		return
	}

	from := extractFromAddress(req)
	d := newIncomingDialog(a, callID, from)
	d.inviteReq = req
	d.serverTx = tx

	ms, err := media.New(a.mediaTemplate, media.Handler{
		OnSDPReady: func(sdp string) { a.onIncomingSDPReady(d, sdp) },
		OnError:    func(err error) { a.raiseError(ErrKindMediaSDPFailed, err.Error()) },
	})
	if err != nil {
		tx.Respond(sip.NewResponseFromRequest(req, 500, "Server Internal Error", nil))
		a.raiseError(ErrKindMediaSDPFailed, err.Error())
		return
	}
	d.mediaSession = ms

	if body := req.Body(); body != nil {
		if err := ms.SetRemoteSDP(string(body)); err != nil {
			a.raiseError(ErrKindMediaSDPFailed, err.Error())
		}
	}

	if err := d.transition("incoming"); err != nil {
		a.raiseError(ErrKindSIPCallFailed, err.Error())
		return
	}

	a.mu.Lock()
	a.dialogs[callID] = d
	a.mu.Unlock()
	a.met.DialogsActive.Inc()

	if a.handler.OnIncomingCall != nil {
		a.handler.OnIncomingCall(d, from)
	}
}

// AnswerCall implements spec §4.3's answer_call(dialog): valid only in
// incoming; starts gathering on the pre-created Media Session.
func (a *Agent) AnswerCall(d *Dialog) error {
	if d.State() != DialogStateIncoming {
		return errcode.New(errcode.ErrSIPInvalidState, fmt.Errorf("answer_call requires state incoming, have %s", d.State()))
	}
	return d.mediaSession.GatherCandidates()
}

func (a *Agent) onIncomingSDPReady(d *Dialog, sdp string) {
	session, err := a.dialogSrv.ReadInvite(d.inviteReq, d.serverTx)
	if err != nil {
		d.serverTx.Respond(sip.NewResponseFromRequest(d.inviteReq, 500, "Server Internal Error", nil))
		a.raiseError(ErrKindSIPCallFailed, err.Error())
		return
	}
	d.serverSession = session

	if err := session.Respond(200, "OK", []byte(sdp)); err != nil {
		a.raiseError(ErrKindSIPSendFailed, err.Error())
	}
}

// RejectCall implements spec §4.3's reject_call(dialog, status, reason).
func (a *Agent) RejectCall(d *Dialog, status int, reason string) error {
	if d.State() != DialogStateIncoming {
		return errcode.New(errcode.ErrSIPInvalidState, fmt.Errorf("reject_call requires state incoming, have %s", d.State()))
	}
	if err := d.serverTx.Respond(sip.NewResponseFromRequest(d.inviteReq, status, reason, nil)); err != nil {
		return errcode.New(errcode.ErrSIPSendFailed, err)
	}
	a.terminateDialog(d, "reject")
	return nil
}

// Hangup implements spec §4.3's hangup(dialog).
func (a *Agent) Hangup(d *Dialog) error {
	if d.State() != DialogStateConfirmed {
		return errcode.New(errcode.ErrSIPInvalidState, fmt.Errorf("hangup requires state confirmed, have %s", d.State()))
	}

	var err error
	if d.clientSession != nil {
		err = d.clientSession.Bye(context.Background())
	} else if d.serverSession != nil {
		err = d.serverSession.Bye(context.Background())
	}

	a.terminateDialog(d, "bye")
	if err != nil {
		return errcode.New(errcode.ErrSIPSendFailed, err)
	}
	return nil
}

// CancelCall implements spec §4.3's cancel_call(dialog): valid in
// calling or early.
func (a *Agent) CancelCall(d *Dialog) error {
	st := d.State()
	if st != DialogStateCalling && st != DialogStateEarly {
		return errcode.New(errcode.ErrSIPInvalidState, fmt.Errorf("cancel_call requires calling or early, have %s", st))
	}
	if d.clientSession == nil {
		return errcode.New(errcode.ErrSIPInvalidState, fmt.Errorf("no pending invite transaction to cancel"))
	}

	err := d.clientSession.Cancel(context.Background())
	a.terminateDialog(d, "cancelled")
	if err != nil {
		return errcode.New(errcode.ErrSIPSendFailed, err)
	}
	return nil
}

func (a *Agent) terminateDialog(d *Dialog, event string) {
	_ = d.transition(event)
	if d.mediaSession != nil {
		_ = d.mediaSession.Destroy()
	}
	a.mu.Lock()
	delete(a.dialogs, d.CallID())
	a.mu.Unlock()
	a.met.DialogsActive.Dec()
	a.met.CallsTotal.WithLabelValues(callOutcome(event)).Inc()
}

// callOutcome maps the terminating event to the CallsTotal result label.
func callOutcome(event string) string {
	switch event {
	case "bye":
		return "confirmed"
	case "cancelled":
		return "cancelled"
	default:
		return "failed"
	}
}

// Loop implements spec §4.3's loop(budget-ms): expires any timer whose
// deadline has passed, firing callbacks after releasing every internal
// lock per spec §9's re-entrancy rule.
func (a *Agent) Loop(budget time.Duration) error {
	for _, fn := range a.wheel.Expire(time.Now()) {
		fn()
	}
	return nil
}

// Stop unregisters (if registered) and stops the listener.
func (a *Agent) Stop(ctx context.Context) error {
	if a.reg.State() == RegStateRegistered {
		if err := a.reg.transition("stop"); err == nil {
			req := a.buildRegister(0)
			if _, err := a.sendAuthenticated(ctx, req, &authState{}); err == nil {
				_ = a.reg.transition("unregistered")
			}
		}
	}
	if a.listenCancel != nil {
		a.listenCancel()
	}
	return nil
}

// Close tears down the Agent, best-effort-terminating every remaining
// Dialog per spec §5's "Destroying an Agent while dialogs remain active"
// policy, and releases this Agent's reference to the shared timer wheel.
func (a *Agent) Close() error {
	a.mu.Lock()
	dialogs := make([]*Dialog, 0, len(a.dialogs))
	for _, d := range a.dialogs {
		dialogs = append(dialogs, d)
	}
	a.mu.Unlock()

	for _, d := range dialogs {
		if d.State() == DialogStateConfirmed {
			_ = a.Hangup(d)
		} else {
			a.terminateDialog(d, "cancelled")
		}
	}

	releaseSharedWheel()
	return a.ua.Close()
}

func (a *Agent) lookupByCallID(callID string) *Dialog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dialogs[callID]
}

func (a *Agent) notifyDialogStateChanged(d *Dialog, state DialogState) {
	if a.handler.OnDialogStateChanged != nil {
		a.handler.OnDialogStateChanged(d, state)
	}
}

func (a *Agent) notifyRegisterResult(success bool, status int) {
	result := "failure"
	if success {
		result = "success"
	}
	a.met.RegisterAttempts.WithLabelValues(result).Inc()
	if a.handler.OnRegisterResult != nil {
		a.handler.OnRegisterResult(success, status)
	}
}

func (a *Agent) raiseError(kind ErrorKind, message string) {
	a.log.Error().Str("kind", string(kind)).Msg(message)
	if a.handler.OnError != nil {
		a.handler.OnError(kind, message)
	}
}

func extractFromAddress(req *sip.Request) FromAddress {
	from := req.From()
	if from == nil {
		return FromAddress{}
	}
	return FromAddress{
		DisplayName: from.DisplayName,
		User:        from.Address.User,
		Host:        from.Address.Host,
		Port:        int(from.Address.Port),
	}
}

func bindHost(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

func bindPort(addr string) int {
	port := 0
	for i := len(addr) - 1; i >= 0 && addr[i] != ':'; i-- {
		digit := int(addr[i] - '0')
		mul := 1
		for j := i; j < len(addr)-1; j++ {
			mul *= 10
		}
		port += digit * mul
	}
	return port
}
