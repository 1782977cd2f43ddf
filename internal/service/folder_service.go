package service

import (
	"context"
	"fmt"

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"
	"talktofolder-go/internal/repository"
	"talktofolder-go/pkg/drive"
	"talktofolder-go/pkg/log"

	"github.com/google/uuid"
)

// FolderStatus 是文件夹的索引状态报告。
type FolderStatus struct {
	Folder *model.Folder `json:"folder"`
	Files  []*model.File `json:"files"`
	// IndexedCount / TotalCount 便于前端展示进度。
	IndexedCount int `json:"indexedCount"`
	TotalCount   int `json:"totalCount"`
}

// FolderService 负责文件夹的接入、文件同步与状态查询。
type FolderService interface {
	// AttachFolder 注册一个 Drive 文件夹：拉取元数据与文件列表，
	// 落库并创建 1:1 会话。重复接入同一文件夹时只做文件同步。
	AttachFolder(ctx context.Context, user *model.User, driveFolderID string) (*model.Folder, *model.Chat, error)
	// SyncFiles 从 Drive 重新拉取文件列表并合并到本地。
	SyncFiles(ctx context.Context, user *model.User, folderID string) ([]*model.File, error)
	// Status 返回文件夹及其文件的索引状态。
	Status(userID, folderID string) (*FolderStatus, error)
}

type folderService struct {
	folderRepo repository.FolderRepository
	fileRepo   repository.FileRepository
	chatRepo   repository.ChatRepository
	googleCfg  config.GoogleConfig
}

// NewFolderService 创建一个新的 FolderService 实例。
func NewFolderService(
	folderRepo repository.FolderRepository,
	fileRepo repository.FileRepository,
	chatRepo repository.ChatRepository,
	googleCfg config.GoogleConfig,
) FolderService {
	return &folderService{
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		chatRepo:   chatRepo,
		googleCfg:  googleCfg,
	}
}

func (s *folderService) AttachFolder(ctx context.Context, user *model.User, driveFolderID string) (*model.Folder, *model.Chat, error) {
	client, err := drive.NewClient(ctx, s.googleCfg, user.AccessToken, user.RefreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	remote, err := client.GetFolder(ctx, driveFolderID)
	if err != nil {
		return nil, nil, err
	}

	folder, err := s.folderRepo.FindByDriveIDForUser(driveFolderID, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up folder: %w", err)
	}
	if folder == nil {
		folder = &model.Folder{
			ID:          uuid.NewString(),
			DriveID:     driveFolderID,
			UserID:      user.ID,
			Name:        remote.Name,
			IndexStatus: model.IndexStatusPending,
		}
		if err := s.folderRepo.Create(folder); err != nil {
			return nil, nil, fmt.Errorf("failed to create folder: %w", err)
		}
		log.Infof("[FolderService] 用户 %s 接入文件夹 %s (%s)", user.ID, folder.Name, driveFolderID)
	}

	if _, err := s.syncFiles(ctx, client, folder); err != nil {
		return nil, nil, err
	}

	chat, err := s.chatRepo.FindByFolder(folder.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up chat: %w", err)
	}
	if chat == nil {
		chat = &model.Chat{
			ID:       uuid.NewString(),
			FolderID: folder.ID,
			Title:    remote.Name,
		}
		if err := s.chatRepo.Create(chat); err != nil {
			return nil, nil, fmt.Errorf("failed to create chat: %w", err)
		}
	}
	return folder, chat, nil
}

func (s *folderService) SyncFiles(ctx context.Context, user *model.User, folderID string) ([]*model.File, error) {
	folder, err := s.folderRepo.FindByIDForUser(folderID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %s not found", folderID)
	}

	client, err := drive.NewClient(ctx, s.googleCfg, user.AccessToken, user.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return s.syncFiles(ctx, client, folder)
}

// syncFiles 把 Drive 端的文件列表合并到本地，已有文件保留 indexed 标记。
func (s *folderService) syncFiles(ctx context.Context, client *drive.Client, folder *model.Folder) ([]*model.File, error) {
	remoteFiles, err := client.ListFolderFiles(ctx, folder.DriveID)
	if err != nil {
		return nil, err
	}

	for _, rf := range remoteFiles {
		file := &model.File{
			ID:       uuid.NewString(),
			DriveID:  rf.Id,
			FolderID: folder.ID,
			Name:     rf.Name,
			MimeType: rf.MimeType,
			Size:     rf.Size,
		}
		if err := s.fileRepo.Upsert(file); err != nil {
			return nil, fmt.Errorf("failed to upsert file %s: %w", rf.Name, err)
		}
	}
	return s.fileRepo.FindByFolder(folder.ID)
}

func (s *folderService) Status(userID, folderID string) (*FolderStatus, error) {
	folder, err := s.folderRepo.FindByIDForUser(folderID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %s not found", folderID)
	}

	files, err := s.fileRepo.FindByFolder(folder.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder files: %w", err)
	}

	status := &FolderStatus{Folder: folder, Files: files, TotalCount: len(files)}
	for _, f := range files {
		if f.Indexed {
			status.IndexedCount++
		}
	}
	return status, nil
}
