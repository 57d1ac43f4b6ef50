package service

import (
	"context"
	"fmt"
	"log"

	"bankledger/internal/config"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/pkg/idgen"
)

// WalletService 钱包开户
type WalletService struct {
	uow     repository.UnitOfWork
	catalog *model.AssetCatalog
	cfg     *config.Config
}

func NewWalletService(uow repository.UnitOfWork, catalog *model.AssetCatalog, cfg *config.Config) *WalletService {
	return &WalletService{
		uow:     uow,
		catalog: catalog,
		cfg:     cfg,
	}
}

// CreateWallet 开户并为每个默认资产建立账本账户
// 钱包和全部账户在同一事务内落库，不会出现半开通的钱包
func (s *WalletService) CreateWallet(ctx context.Context) (*model.Wallet, error) {
	accountNumber := idgen.GenerateAccountNumber()

	wallet := &model.Wallet{AccountNumber: accountNumber}
	var fiats []*model.FiatAccount
	var cryptos []*model.CryptoAccount

	for _, symbol := range s.cfg.Business.DefaultAssets {
		asset := s.catalog.GetBySymbol(symbol)
		if asset == nil {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, symbol)
		}
		switch asset.Type {
		case model.AssetTypeFiat:
			acc, err := model.NewFiatAccount(accountNumber, *asset)
			if err != nil {
				return nil, err
			}
			fiats = append(fiats, acc)
			wallet.FiatSymbols = append(wallet.FiatSymbols, symbol)
		case model.AssetTypeCrypto:
			network, ok := model.CryptoNetwork(symbol)
			if !ok {
				return nil, fmt.Errorf("未知链网络: %s", symbol)
			}
			acc, err := model.NewCryptoAccount(accountNumber, *asset, network, idgen.GenerateChainAddress())
			if err != nil {
				return nil, err
			}
			cryptos = append(cryptos, acc)
			wallet.CryptoSymbols = append(wallet.CryptoSymbols, symbol)
		}
	}

	err := s.uow.WithTransaction(ctx, func(st repository.Stores) error {
		if err := st.Wallet.Create(ctx, wallet); err != nil {
			return fmt.Errorf("创建钱包失败: %w", err)
		}
		for _, acc := range fiats {
			if err := st.Fiat.Create(ctx, acc); err != nil {
				return fmt.Errorf("创建法币账户失败: %w", err)
			}
		}
		for _, acc := range cryptos {
			if err := st.Crypto.Create(ctx, acc); err != nil {
				return fmt.Errorf("创建加密账户失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("钱包开通成功: account=%s, assets=%v", accountNumber, s.cfg.Business.DefaultAssets)
	return wallet, nil
}

// GetWallet 查询钱包
func (s *WalletService) GetWallet(ctx context.Context, accountNumber string) (*model.Wallet, error) {
	return s.uow.Stores().Wallet.GetByAccountNumber(ctx, accountNumber)
}
