package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/api"
	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/hub"
	"github.com/colornodes/client-go/internal/identity"
	"github.com/colornodes/client-go/internal/session"
	"github.com/colornodes/client-go/internal/setup"
	"github.com/colornodes/client-go/internal/store"
	"github.com/colornodes/client-go/internal/swap"
	"github.com/colornodes/client-go/internal/timer"
)

type app struct {
	cfg *config
	log *zap.Logger

	api      *api.Client
	ids      *identity.FileStore
	registry *hub.Registry
	store    *store.Store

	me       identity.Identity
	roomCode string
	conn     *hub.Conn

	gameID      string
	sess        *session.Session
	swapper     *swap.Coordinator
	arranger    *setup.Coordinator
	timerCancel context.CancelFunc
}

func runApp(ctx context.Context, cfg *config, log *zap.Logger) error {
	ids, err := identity.NewFileStore(cfg.configDir, log)
	if err != nil {
		return err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		api:      api.NewClient(cfg.serverURL, log),
		ids:      ids,
		registry: hub.NewRegistry(cfg.hubURL, log),
		store:    store.New(),
	}
	defer a.registry.DisposeAll()

	if err := a.enterRoom(ctx); err != nil {
		return err
	}
	defer a.leaveRoom()

	if err := a.connect(ctx); err != nil {
		return err
	}

	// Rejoin a game in progress if the room or a previous session knows one.
	if gameID := a.knownGameID(ctx); gameID != "" {
		a.attachGame(ctx, gameID)
	}

	return a.inputLoop(ctx)
}

func (a *app) enterRoom(ctx context.Context) error {
	if a.cfg.roomCode != "" {
		joined, err := a.api.JoinRoom(ctx, a.cfg.username, a.cfg.roomCode)
		if err != nil {
			return fmt.Errorf("join room %s: %w", a.cfg.roomCode, err)
		}
		a.me = identity.Identity{ID: joined.UserID, Username: joined.Username}
		a.roomCode = joined.Code
	} else {
		room, err := a.api.CreateRoom(ctx, a.cfg.username)
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		a.me = identity.Identity{ID: room.LeaderID, Username: a.cfg.username}
		a.roomCode = room.Code
	}
	if err := a.ids.Save(a.me); err != nil {
		a.log.Warn("could not persist identity", zap.Error(err))
	}
	fmt.Printf("room %s — you are %s (#%d)\n", a.roomCode, a.me.Username, a.me.ID)
	return nil
}

func (a *app) leaveRoom() {
	ctx := context.Background()
	if err := a.api.LeaveRoom(ctx, a.roomCode, a.me.ID); err != nil {
		a.log.Debug("leave room failed", zap.Error(err))
	}
}

func (a *app) connect(ctx context.Context) error {
	a.conn = a.registry.GetOrCreate(a.roomCode, hub.Identity{UserID: a.me.ID, Username: a.me.Username})
	a.conn.RegisterHandlers(hub.Handlers{
		OnChatMessage: func(msg game.ChatMessage) {
			fmt.Printf("[chat] %s: %s\n", msg.Sender, msg.Text)
		},
		OnPlayerJoined: func(u string) { fmt.Printf("* %s joined\n", u) },
		OnPlayerLeft:   func(u string) { fmt.Printf("* %s left\n", u) },
		OnConnStatus: func(status hub.Status, cause error) {
			if cause != nil {
				fmt.Printf("* connection: %s (%v)\n", status, cause)
			} else {
				fmt.Printf("* connection: %s\n", status)
			}
		},
	})
	return a.conn.Start(ctx)
}

func (a *app) knownGameID(ctx context.Context) string {
	room, err := a.api.GetRoom(ctx, a.roomCode)
	if err == nil && room.ActiveGameID != "" {
		return room.ActiveGameID
	}
	if cached, ok := a.ids.ActiveGame(a.roomCode); ok {
		return cached
	}
	return ""
}

// attachGame wires the session, coordinators and timer for one game.
func (a *app) attachGame(ctx context.Context, gameID string) {
	a.detachGame()

	sess := session.New(a.roomCode, gameID, a.store, a.api, a.conn, a.log)
	sess.OnChange = func(state game.GameState) { a.render(state) }
	sess.OnHitFeedback = func(m string) { fmt.Printf("* %s\n", m) }
	sess.OnGameGone = func(id string) {
		fmt.Println("* game is gone; waiting for a new one")
		_ = a.ids.ForgetGame(a.roomCode)
		a.detachGame()
	}
	sess.OnForceRejoin = func(roomCode string) {
		fmt.Println("* room was reset; rejoin with 'start'")
		_ = a.ids.ForgetGame(roomCode)
		a.detachGame()
	}
	// Coordinators exist before Start: priming fires OnChange, and render
	// reads the arranger's draft in the setup phase.
	a.gameID = gameID
	a.sess = sess
	a.swapper = swap.NewCoordinator(gameID, a.me.ID, a.store, a.api, a.log)
	a.arranger = setup.NewCoordinator(gameID, a.me.ID, a.store, a.api, a.log)

	if err := sess.Start(ctx); err != nil {
		fmt.Println("could not attach to game:", err)
		a.detachGame()
		return
	}
	_ = a.ids.RememberGame(a.roomCode, gameID)

	t := timer.New(gameID, a.store, a.api, a.log)
	t.OnNotFound = func() {
		_ = a.ids.ForgetGame(a.roomCode)
	}
	timerCtx, cancel := context.WithCancel(ctx)
	a.timerCancel = cancel
	go t.Run(timerCtx, nil)
}

func (a *app) detachGame() {
	if a.timerCancel != nil {
		a.timerCancel()
		a.timerCancel = nil
	}
	if a.sess != nil {
		a.sess.Close(context.Background())
		a.sess = nil
	}
	a.gameID = ""
	a.swapper = nil
	a.arranger = nil
}

func (a *app) render(state game.GameState) {
	switch state.Status {
	case game.StatusSetup:
		if state.IsTurnOf(a.me.ID) {
			fmt.Printf("setup: arrange the cups — colors: %s\n", strings.Join(state.AvailableColors, " "))
			fmt.Printf("draft: %s\n", formatBoard(a.arranger.Draft()))
		} else {
			fmt.Println("setup: waiting for the arranger")
		}
	case game.StatusInProgress:
		left := timer.RemainingAt(state.TurnDeadline(), time.Now())
		fmt.Printf("board: %s  hits=%d moves=%d  %s\n",
			formatBoard(state.Cups), state.Hits, state.TotalMoves, timer.Format(left))
		if state.IsTurnOf(a.me.ID) {
			fmt.Println("your turn — swap <from> <to>")
		}
	case game.StatusFinished:
		fmt.Printf("finished in %d moves! target was: %s\n", state.TotalMoves, formatBoard(state.TargetPattern))
	}
}

func formatBoard(cups []string) string {
	out := make([]string, len(cups))
	for i, c := range cups {
		if c == "" {
			out[i] = "_"
		} else {
			out[i] = c
		}
	}
	return "[" + strings.Join(out, " ") + "]"
}

func (a *app) inputLoop(ctx context.Context) error {
	fmt.Println("commands: start | place <color> <slot> | remove <slot> | confirm | swap <from> <to> | chat <text> | board | reset | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "start":
			state, err := a.api.StartGame(ctx, a.roomCode)
			if err != nil {
				fmt.Println("start failed:", err)
				continue
			}
			a.attachGame(ctx, state.GameID)
		case "board":
			if state, ok := a.currentState(); ok {
				a.render(state)
			} else {
				fmt.Println("no game yet — 'start' begins one")
			}
		case "place":
			a.doPlace(fields[1:])
		case "remove":
			a.doRemove(fields[1:])
		case "confirm":
			a.doConfirm(ctx)
		case "swap":
			a.doSwap(ctx, fields[1:])
		case "chat":
			text := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "chat"))
			if err := a.conn.SendChat(ctx, a.roomCode, a.me.Username, text); err != nil {
				fmt.Println("chat failed:", err)
			}
		case "reset":
			if err := a.conn.RequestRoomReset(ctx, a.roomCode); err != nil {
				fmt.Println("reset failed:", err)
			}
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
	return scanner.Err()
}

func (a *app) currentState() (game.GameState, bool) {
	if a.gameID == "" {
		return game.GameState{}, false
	}
	return a.store.Get(a.gameID)
}

func (a *app) doPlace(args []string) {
	if a.arranger == nil || len(args) != 2 {
		fmt.Println("usage: place <color> <slot>")
		return
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Println("usage: place <color> <slot>")
		return
	}
	if err := a.arranger.Place(args[0], slot); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("draft: %s\n", formatBoard(a.arranger.Draft()))
	if reason := a.arranger.BlockReason(); reason != "" {
		fmt.Println(reason)
	} else {
		fmt.Println("draft complete — 'confirm' to lock it in")
	}
}

func (a *app) doRemove(args []string) {
	if a.arranger == nil || len(args) != 1 {
		fmt.Println("usage: remove <slot>")
		return
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("usage: remove <slot>")
		return
	}
	a.arranger.Remove(slot)
	fmt.Printf("draft: %s\n", formatBoard(a.arranger.Draft()))
}

func (a *app) doConfirm(ctx context.Context) {
	if a.arranger == nil {
		fmt.Println("no game yet")
		return
	}
	if err := a.arranger.Confirm(ctx); err != nil {
		fmt.Println("confirm failed:", err)
	}
}

func (a *app) doSwap(ctx context.Context, args []string) {
	if a.swapper == nil || len(args) != 2 {
		fmt.Println("usage: swap <from> <to>")
		return
	}
	from, err1 := strconv.Atoi(args[0])
	to, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Println("usage: swap <from> <to>")
		return
	}
	if !a.swapper.IsMyTurn() {
		fmt.Println("not your turn")
		return
	}
	if err := a.swapper.HandleDrop(ctx, from, to); err != nil {
		fmt.Println("swap failed:", err)
	}
}
