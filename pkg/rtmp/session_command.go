package rtmp

import (
	"log/slog"
	"relay/pkg/amf"
)

type commandHandler func(s *Session, cmd *command, decodeErr error) error

var commandHandlers = map[string]commandHandler{
	"connect":         (*Session).onConnect,
	"createStream":    (*Session).onCreateStream,
	"publish":         (*Session).onPublish,
	"play":            (*Session).onPlay,
	"deleteStream":    (*Session).onDeleteStream,
	"closeStream":     (*Session).onCloseStream,
	"FCUnpublish":     (*Session).onCloseStream,
	"receiveAudio":    (*Session).onReceiveAudio,
	"receiveVideo":    (*Session).onReceiveVideo,
	"pause":           (*Session).onPause,
	"seek":            (*Session).onSeek,
	"getStreamLength": (*Session).onGetStreamLength,
}

func (s *Session) handleCommand(payload []byte) error {
	cmd, err := decodeCommand(payload)
	if cmd == nil {
		slog.Warn("Invalid command", "sessionId", s.uuid, "err", err)
		return nil
	}
	if err != nil {
		slog.Warn("Command decode failed", "sessionId", s.uuid, "name", cmd.name, "err", err)
	}

	// -1 은 응답이 필요없는 알림
	if cmd.transactionID == -1 {
		return nil
	}

	handler, ok := commandHandlers[cmd.name]
	if !ok {
		slog.Debug("Unknown command ignored", "sessionId", s.uuid, "name", cmd.name)
		return nil
	}
	return handler(s, cmd, err)
}

func (s *Session) sendOnStatus(transactionID float64, level, code, description string) error {
	payload, err := amf.EncodeAMF0Sequence("onStatus", transactionID, nil, amf.Object{
		{Key: "level", Value: level},
		{Key: "code", Value: code},
		{Key: "description", Value: description},
	})
	if err != nil {
		return err
	}
	return s.sendMessage(newCommandMessage(s.streamID, payload))
}

func (s *Session) sendResult(name string, transactionID float64, values ...any) error {
	payload, err := amf.EncodeAMF0Sequence(append([]any{name, transactionID}, values...)...)
	if err != nil {
		return err
	}
	return s.sendMessage(newCommandMessage(0, payload))
}

func (s *Session) onConnect(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return nil
	}
	info, err := decodeConnectInfo(cmd.object)
	if err != nil {
		slog.Warn("Connect rejected", "sessionId", s.uuid, "err", err)
		return nil
	}
	s.info = info

	cfg := s.srv.cfg
	err = s.sendMessages(
		newWindowAckSize(cfg.WindowAckSize),
		newSetPeerBandwidth(cfg.PeerBandwidth, LimitTypeDynamic),
		newSetChunkSize(cfg.ChunkSize),
	)
	if err != nil {
		return err
	}
	if err := s.writer.setChunkSize(cfg.ChunkSize); err != nil {
		return err
	}

	err = s.sendResult("_result", cmd.transactionID,
		amf.Object{
			{Key: "fmsVer", Value: FMSVersion},
			{Key: "capabilities", Value: Capabilities},
			{Key: "mode", Value: 1},
		},
		amf.Object{
			{Key: "level", Value: levelStatus},
			{Key: "code", Value: "NetConnection.Connect.Success"},
			{Key: "description", Value: "Connection succeeded."},
			{Key: "objectEncoding", Value: info.ObjectEncoding},
		},
	)
	if err != nil {
		return err
	}

	slog.Info("Connected", "sessionId", s.uuid, "app", info.App, "flashVer", info.FlashVer, "tcUrl", info.TcURL)
	s.srv.emit(Connected{SessionId: s.uuid, App: info.App, FlashVer: info.FlashVer, TcURL: info.TcURL})
	s.srv.scheduleBWDone(s)
	return nil
}

func (s *Session) onCreateStream(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return nil
	}
	if s.info == nil {
		return s.sendResult("_error", cmd.transactionID, nil, amf.Object{
			{Key: "level", Value: levelError},
			{Key: "code", Value: "NetConnection.CreateStream.Failed"},
			{Key: "description", Value: "createStream failed."},
		})
	}

	s.streamID = DefaultStreamID
	s.srv.emit(StreamCreated{SessionId: s.uuid, StreamId: s.streamID})
	return s.sendResult("_result", cmd.transactionID, nil, float64(s.streamID))
}

func (s *Session) onPublish(cmd *command, decodeErr error) error {
	name, ok := cmd.stringArg(0)
	if decodeErr != nil || !ok || name == "" || s.info == nil {
		slog.Warn("Publish rejected", "sessionId", s.uuid, "err", streamNameError(decodeErr, s.info))
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Publish.BadName", "")
	}
	streamType, _ := cmd.stringArg(1)
	if streamType == "" {
		streamType = "live"
	}

	key := streamKey(s.info.App, name)
	if s.source != nil && (s.role != rolePublisher || s.source.key != key) {
		s.detach()
	}

	src, replaced := s.srv.registry.Publish(key, s)
	if replaced != nil {
		if prev, ok := s.srv.sessionsByUUID[replaced.ID()]; ok {
			prev.evict()
		}
	}
	s.role = rolePublisher
	s.source = src
	s.streamType = streamType

	// 녹화 타입(record/append)은 기록만 한다
	slog.Info("Publish started", "sessionId", s.uuid, "stream", key, "type", streamType)
	s.srv.emit(PublishStarted{SessionId: s.uuid, StreamName: key, StreamType: streamType, StreamId: s.streamID})

	if err := s.sendMessage(newUserControl(UserControlStreamBegin, s.streamID)); err != nil {
		return err
	}
	return s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.Publish.Start", "")
}

func (s *Session) onPlay(cmd *command, decodeErr error) error {
	name, ok := cmd.stringArg(0)
	if decodeErr != nil || !ok || name == "" || s.info == nil {
		slog.Warn("Play rejected", "sessionId", s.uuid, "err", streamNameError(decodeErr, s.info))
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Play.Failed", "")
	}
	// args: streamName, start, duration, reset
	reset := cmd.boolArg(3, false)

	key := streamKey(s.info.App, name)
	if s.source != nil && (s.role != rolePlayer || s.source.key != key) {
		s.detach()
	}

	src, err := s.srv.registry.Play(key, s)
	if err != nil {
		slog.Warn("Play rejected", "sessionId", s.uuid, "stream", key, "err", err)
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Play.Failed", "")
	}
	s.role = rolePlayer
	s.source = src

	slog.Info("Play started", "sessionId", s.uuid, "stream", key, "publishing", src.publisher != nil)
	s.srv.emit(PlayStarted{SessionId: s.uuid, StreamName: key, StreamId: s.streamID})

	if err := s.sendMessage(newUserControl(UserControlStreamBegin, s.streamID)); err != nil {
		return err
	}
	if reset {
		if err := s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.Play.Reset", ""); err != nil {
			return err
		}
	}
	if err := s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.Play.Start", "Start video on demand"); err != nil {
		return err
	}
	if err := s.sendMessage(newUserControl(UserControlStreamIsRecorded, s.streamID)); err != nil {
		return err
	}

	payload, err := amf.EncodeAMF0Sequence("|RtmpSampleAccess", true, true)
	if err != nil {
		return err
	}
	return s.sendMessage(newDataMessage(s.streamID, payload))
}

func (s *Session) onDeleteStream(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.DeleteStream.Failed", "")
	}
	s.detach()
	s.streamID = 0
	// 클라이언트 호환을 위해 원래 철자(Suceess)를 유지한다
	return s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.DeleteStream.Suceess", "")
}

// onCloseStream handles closeStream and FCUnpublish, which expect no reply.
func (s *Session) onCloseStream(_ *command, _ error) error {
	s.detach()
	return nil
}

func (s *Session) onReceiveAudio(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Seek.Failed", "")
	}
	s.receiveAudio = cmd.boolArg(0, true)
	if !s.receiveAudio {
		return nil
	}
	return s.sendSeekAndStart(cmd.transactionID)
}

func (s *Session) onReceiveVideo(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Seek.Failed", "")
	}
	s.receiveVideo = cmd.boolArg(0, true)
	if !s.receiveVideo {
		return nil
	}
	return s.sendSeekAndStart(cmd.transactionID)
}

func (s *Session) sendSeekAndStart(transactionID float64) error {
	if err := s.sendOnStatus(transactionID, levelStatus, "NetStream.Seek.Notify", ""); err != nil {
		return err
	}
	return s.sendOnStatus(transactionID, levelStatus, "NetStream.Play.Start", "")
}

// onPause only acknowledges; delivery is not suspended.
func (s *Session) onPause(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Pause.Failed", "")
	}
	if cmd.boolArg(0, true) {
		return s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.Pause.Notify", "")
	}
	return s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.Unpause.Notify", "")
}

// onSeek only acknowledges; live streams cannot seek.
func (s *Session) onSeek(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return s.sendOnStatus(cmd.transactionID, levelError, "NetStream.Seek.Failed", "")
	}
	return s.sendOnStatus(cmd.transactionID, levelStatus, "NetStream.Seek.Notify", "")
}

func (s *Session) onGetStreamLength(cmd *command, decodeErr error) error {
	if decodeErr != nil {
		return nil
	}
	payload, err := amf.EncodeAMF0Sequence("_result", cmd.transactionID, nil, float64(-1))
	if err != nil {
		return err
	}
	return s.sendMessage(newCommandMessage(s.streamID, payload))
}

// streamNameError explains why a publish or play request has no usable stream name.
func streamNameError(decodeErr error, info *ConnectInfo) error {
	switch {
	case decodeErr != nil:
		return decodeErr
	case info == nil:
		return ErrNotConnected
	default:
		return ErrMissingStreamName
	}
}
