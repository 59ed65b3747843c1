/*
Package handler provides the HTTP handlers and routing setup for the
quickchat server. This file covers the message operations: send (persist
then best-effort live push), sidebar users with unseen counts, conversation
fetch with implicit mark-seen, and single-message mark-seen.
*/
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quickchat/internal/app/message"
	"quickchat/internal/app/store"
	"quickchat/internal/pkg/auth/jwt"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/randx"
	"quickchat/internal/pkg/req"
	"quickchat/internal/pkg/resp"
)

// SendMessageInput is the JSON body for sending a message. Exactly one of
// text/imageUrl must be present.
type SendMessageInput struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// HandleSendMessage persists a new message and then offers it to the
// delivery router. Persistence failures surface synchronously to the sender;
// push failures never do — the message is durable and the receiver recovers
// it via history fetch.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		receiverID := chi.URLParam(r, "id")
		if !randx.IsValidUserID(receiverID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrReceiverInvalid))
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		draft := message.Message{
			SenderID:   identity.ID,
			ReceiverID: receiverID,
			Text:       input.Text,
			ImageURL:   input.ImageURL,
		}
		if customErr := draft.Validate(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		// Persist-before-route: a crash after this point loses only the
		// live push, never the message.
		msg, err := deps.Store.CreateMessage(r.Context(), identity.ID, receiverID, input.Text, input.ImageURL)
		if err != nil {
			logx.Error(err, "failed to persist message", "sender_id", identity.ID, "receiver_id", receiverID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		deps.Router.Route(msg)

		resp.RespondSuccess(w, r, map[string]any{
			"message": msg,
		})
	}
}

// HandleListUsers returns every other user plus the per-sender unseen counts
// and the current online set, everything the sidebar needs in one call.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		users, err := deps.Store.ListOtherUsers(r.Context(), identity.ID)
		if err != nil {
			logx.Error(err, "failed to list users", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		unseen, err := deps.Store.CountUnseenPerSender(r.Context(), identity.ID)
		if err != nil {
			logx.Error(err, "failed to count unseen messages", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users":          users,
			"unseenMessages": unseen,
			"onlineUserIds":  deps.Registry.Snapshot(),
		})
	}
}

// HandleGetConversation returns the full conversation with the peer and
// implicitly marks every message from the peer as seen — opening a
// conversation is the bulk seen-acknowledgement path.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		peerID := chi.URLParam(r, "id")
		if !randx.IsValidUserID(peerID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		msgs, err := deps.Store.ListConversation(r.Context(), identity.ID, peerID)
		if err != nil {
			logx.Error(err, "failed to list conversation", "user_id", identity.ID, "peer_id", peerID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if err := deps.Store.MarkAllSeenFrom(r.Context(), peerID, identity.ID); err != nil {
			// The fetch already succeeded; the durable seen-state catches up
			// on the next open.
			logx.Error(err, "failed to bulk mark seen", "user_id", identity.ID, "peer_id", peerID)
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": msgs,
		})
	}
}

// HandleMarkSeen marks a single message as seen by ID. Used by clients as the
// fire-and-forget acknowledgement for live-delivered messages.
func HandleMarkSeen(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		messageID := chi.URLParam(r, "id")
		if messageID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Store.MarkSeen(r.Context(), messageID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
				return
			}

			logx.Error(err, "failed to mark message seen", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}
