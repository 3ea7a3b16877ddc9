package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// ChatController manages private/group chats, messages, read receipts and
// message requests.
type ChatController struct {
	db *gorm.DB
}

// NewChatController creates a ChatController.
func NewChatController(db *gorm.DB) *ChatController {
	return &ChatController{db: db}
}

func (c *ChatController) isParticipant(chatID, userID uint) (bool, error) {
	var n int64
	err := c.db.Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).Count(&n).Error
	return n > 0, err
}

// ListChats returns the chats the current user participates in, with the last
// message and unread count per chat.
func (c *ChatController) ListChats(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var chats []models.Chat
	if err := c.db.Model(&models.Chat{}).
		Joins("JOIN chat_participants ON chat_participants.chat_id = chats.id").
		Where("chat_participants.user_id = ?", userID).
		Order("chats.created_at DESC").
		Find(&chats).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50120, "failed to list chats")
		return
	}

	type chatView struct {
		models.Chat
		LastMessage *models.Message `json:"last_message"`
		UnreadCount int64           `json:"unread_count"`
		Peers       []gin.H         `json:"peers"`
	}

	// Fetch the other members of every chat in two queries instead of one
	// pair per chat. The same peer can appear in several chats.
	chatIDs := make([]uint, 0, len(chats))
	for _, chat := range chats {
		chatIDs = append(chatIDs, chat.ID)
	}
	peersByChat := map[uint][]uint{}
	usersByID := map[uint]models.User{}
	if len(chatIDs) > 0 {
		var memberships []models.ChatParticipant
		if err := c.db.Where("chat_id IN ? AND user_id != ?", chatIDs, userID).
			Find(&memberships).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50132, "failed to load chat members")
			return
		}
		peerIDs := make([]uint, 0, len(memberships))
		for _, m := range memberships {
			peersByChat[m.ChatID] = append(peersByChat[m.ChatID], m.UserID)
			peerIDs = append(peerIDs, m.UserID)
		}
		var users []models.User
		if err := c.db.Where("id IN ?", utils.UniqueUint(peerIDs)).
			Find(&users).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50133, "failed to load chat peers")
			return
		}
		for _, u := range users {
			usersByID[u.ID] = u
		}
	}

	items := make([]chatView, 0, len(chats))
	for _, chat := range chats {
		view := chatView{Chat: chat}

		var last models.Message
		if err := c.db.Preload("Sender").Where("chat_id = ?", chat.ID).
			Order("created_at DESC").First(&last).Error; err == nil {
			view.LastMessage = &last
		}

		_ = c.db.Model(&models.Message{}).
			Where("chat_id = ? AND sender_id != ?", chat.ID, userID).
			Where("id NOT IN (?)", c.db.Model(&models.MessageRead{}).
				Select("message_id").Where("user_id = ?", userID)).
			Count(&view.UnreadCount).Error

		for _, peerID := range peersByChat[chat.ID] {
			if peer, ok := usersByID[peerID]; ok {
				view.Peers = append(view.Peers, publicUserResponse(peer))
			}
		}

		items = append(items, view)
	}

	utils.Success(ctx, gin.H{"items": items})
}

// ListMessages returns a chat's messages, oldest first. Participants only.
func (c *ChatController) ListMessages(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var chat models.Chat
	if err := c.db.First(&chat, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40450, "chat not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50121, "failed to load chat")
		return
	}

	member, err := c.isParticipant(chat.ID, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50122, "failed to check membership")
		return
	}
	if !member {
		utils.Error(ctx, http.StatusForbidden, 40340, "you are not in this chat")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	var total int64
	if err := c.db.Model(&models.Message{}).Where("chat_id = ?", chat.ID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50123, "failed to count messages")
		return
	}

	var messages []models.Message
	if err := c.db.Preload("Sender").Where("chat_id = ?", chat.ID).
		Order("created_at ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&messages).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50124, "failed to list messages")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      messages,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// SendMessage appends a message to a chat. Participants only; reply_to must
// reference a message in the same chat.
func (c *ChatController) SendMessage(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
		ReplyTo *uint  `json:"reply_to"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40100, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if strings.TrimSpace(content) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40101, "message cannot be empty")
		return
	}

	var chat models.Chat
	if err := c.db.First(&chat, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40450, "chat not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50121, "failed to load chat")
		return
	}

	member, err := c.isParticipant(chat.ID, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50122, "failed to check membership")
		return
	}
	if !member {
		utils.Error(ctx, http.StatusForbidden, 40340, "you are not in this chat")
		return
	}

	if req.ReplyTo != nil {
		var parent models.Message
		if err := c.db.First(&parent, *req.ReplyTo).Error; err != nil || parent.ChatID != chat.ID {
			utils.Error(ctx, http.StatusBadRequest, 40102, "reply target not in this chat")
			return
		}
	}

	msg := models.Message{
		ChatID:   chat.ID,
		SenderID: userID,
		Content:  content,
		ReplyTo:  req.ReplyTo,
	}
	if err := c.db.Create(&msg).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50125, "failed to send message")
		return
	}
	if err := c.db.Preload("Sender").First(&msg, msg.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50126, "failed to load message")
		return
	}

	utils.Success(ctx, gin.H{"message": msg})
}

// MarkRead records read receipts for every message in the chat that the user
// has not read yet. Idempotent via upsert.
func (c *ChatController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var chat models.Chat
	if err := c.db.First(&chat, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40450, "chat not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50121, "failed to load chat")
		return
	}

	member, err := c.isParticipant(chat.ID, userID)
	if err != nil || !member {
		utils.Error(ctx, http.StatusForbidden, 40340, "you are not in this chat")
		return
	}

	var unreadIDs []uint
	if err := c.db.Model(&models.Message{}).
		Where("chat_id = ? AND sender_id != ?", chat.ID, userID).
		Where("id NOT IN (?)", c.db.Model(&models.MessageRead{}).
			Select("message_id").Where("user_id = ?", userID)).
		Pluck("id", &unreadIDs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50127, "failed to find unread messages")
		return
	}

	now := time.Now()
	for _, id := range unreadIDs {
		receipt := models.MessageRead{MessageID: id, UserID: userID, ReadAt: now}
		if err := c.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt).Error; err != nil {
			utils.Sugar.Warnf("read receipt failed message=%d err=%v", id, err)
		}
	}

	utils.Success(ctx, gin.H{"read": len(unreadIDs)})
}

// CreateMessageRequest asks another user for permission to start a chat.
func (c *ChatController) CreateMessageRequest(ctx *gin.Context) {
	senderID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		ReceiverID uint `json:"receiver_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40103, "invalid request payload")
		return
	}
	if req.ReceiverID == senderID {
		utils.Error(ctx, http.StatusBadRequest, 40104, "you cannot message yourself")
		return
	}

	var receiver models.User
	if err := c.db.First(&receiver, req.ReceiverID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}

	// A block in either direction stops new requests.
	var blocked int64
	_ = c.db.Model(&models.MessageRequest{}).
		Where("status = ?", models.MessageRequestBlocked).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			senderID, req.ReceiverID, req.ReceiverID, senderID).
		Count(&blocked).Error
	if blocked > 0 {
		utils.Error(ctx, http.StatusForbidden, 40341, "messaging not available with this user")
		return
	}

	request := models.MessageRequest{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Status:     models.MessageRequestPending,
	}
	if err := c.db.Create(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40930, "request already sent")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50128, "failed to create request")
		return
	}

	utils.Success(ctx, gin.H{"request": request})
}

// ListMessageRequests returns pending requests addressed to the current user.
func (c *ChatController) ListMessageRequests(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var requests []models.MessageRequest
	if err := c.db.Preload("Sender").
		Where("receiver_id = ? AND status = ?", userID, models.MessageRequestPending).
		Order("created_at DESC").
		Find(&requests).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50129, "failed to list requests")
		return
	}

	utils.Success(ctx, gin.H{"items": requests})
}

// RespondMessageRequest accepts, rejects or blocks a pending request.
// Accepting creates a private chat with both users as members.
func (c *ChatController) RespondMessageRequest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40105, "invalid request payload")
		return
	}

	var status string
	switch req.Action {
	case "accept":
		status = models.MessageRequestAccepted
	case "reject":
		status = models.MessageRequestRejected
	case "block":
		status = models.MessageRequestBlocked
	default:
		utils.Error(ctx, http.StatusBadRequest, 40106, "action must be accept, reject or block")
		return
	}

	var request models.MessageRequest
	if err := c.db.First(&request, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40451, "request not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50130, "failed to load request")
		return
	}
	if request.ReceiverID != userID {
		utils.Error(ctx, http.StatusForbidden, 40342, "only the recipient can respond")
		return
	}
	if request.Status != models.MessageRequestPending {
		utils.Error(ctx, http.StatusConflict, 40931, "request already handled")
		return
	}

	var chatID *uint
	err := c.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&request).
			Updates(map[string]interface{}{"status": status, "responded_at": now}).Error; err != nil {
			return err
		}
		if status != models.MessageRequestAccepted {
			return nil
		}
		// Reuse the private chat when one already exists, e.g. after a
		// request accepted in the other direction.
		var existing models.Chat
		err := tx.Model(&models.Chat{}).
			Joins("JOIN chat_participants sp ON sp.chat_id = chats.id AND sp.user_id = ?", request.SenderID).
			Joins("JOIN chat_participants rp ON rp.chat_id = chats.id AND rp.user_id = ?", request.ReceiverID).
			Where("chats.is_group = ?", false).
			First(&existing).Error
		if err == nil {
			chatID = &existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		chat := models.Chat{CreatedBy: request.SenderID, IsGroup: false}
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		members := []models.ChatParticipant{
			{ChatID: chat.ID, UserID: request.SenderID, Role: models.ChatRoleOwner, JoinedAt: now},
			{ChatID: chat.ID, UserID: request.ReceiverID, Role: models.ChatRoleMember, JoinedAt: now},
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		chatID = &chat.ID
		return nil
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50131, "failed to respond to request")
		return
	}

	payload := gin.H{"status": status}
	if chatID != nil {
		payload["chat_id"] = *chatID
	}
	utils.Success(ctx, payload)
}
