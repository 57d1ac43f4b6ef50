package model

const (
	AssetTypeFiat   = "FIAT"
	AssetTypeCrypto = "CRYPTO"
)

// Asset 资产定义（静态数据，不入库）
type Asset struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
}

// AssetCatalog 资产目录
// 固定的 symbol -> 资产信息 查找表，构造后不可变，
// 通过依赖注入传给 service 层，不使用包级单例
type AssetCatalog struct {
	assets []Asset
}

// NewAssetCatalog 创建默认资产目录
func NewAssetCatalog() *AssetCatalog {
	return &AssetCatalog{assets: []Asset{
		{Name: "United States Dollar", Symbol: "USD", Type: AssetTypeFiat},
		{Name: "Euro", Symbol: "EUR", Type: AssetTypeFiat},
		{Name: "Japanese Yen", Symbol: "JPY", Type: AssetTypeFiat},
		{Name: "Pound Sterling", Symbol: "GBP", Type: AssetTypeFiat},
		{Name: "Australian Dollar", Symbol: "AUD", Type: AssetTypeFiat},
		{Name: "Canadian Dollar", Symbol: "CAD", Type: AssetTypeFiat},
		{Name: "Swiss Franc", Symbol: "CHF", Type: AssetTypeFiat},
		{Name: "Chinese Renminbi", Symbol: "CNH", Type: AssetTypeFiat},
		{Name: "Hong Kong Dollar", Symbol: "HKD", Type: AssetTypeFiat},
		{Name: "New Zealand Dollar", Symbol: "NZD", Type: AssetTypeFiat},
		{Name: "Bitcoin", Symbol: "BTC", Type: AssetTypeCrypto},
		{Name: "Ethereum", Symbol: "ETH", Type: AssetTypeCrypto},
		{Name: "Tether", Symbol: "USDT", Type: AssetTypeCrypto},
		{Name: "Binance Coin", Symbol: "BNB", Type: AssetTypeCrypto},
		{Name: "US Dollar Coin", Symbol: "USDC", Type: AssetTypeCrypto},
		{Name: "XRP", Symbol: "XRP", Type: AssetTypeCrypto},
		{Name: "Cardano", Symbol: "ADA", Type: AssetTypeCrypto},
		{Name: "Polygon", Symbol: "MATIC", Type: AssetTypeCrypto},
		{Name: "Dogecoin", Symbol: "DOGE", Type: AssetTypeCrypto},
		{Name: "Solana", Symbol: "SOL", Type: AssetTypeCrypto},
	}}
}

// GetBySymbol 按符号查找资产，找不到返回 nil
func (c *AssetCatalog) GetBySymbol(symbol string) *Asset {
	for i := range c.assets {
		if c.assets[i].Symbol == symbol {
			a := c.assets[i]
			return &a
		}
	}
	return nil
}

// List 返回全部资产（副本）
func (c *AssetCatalog) List() []Asset {
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// CryptoNetwork 返回加密资产对应的链网络
func CryptoNetwork(symbol string) (string, bool) {
	networks := map[string]string{
		"BTC":   "bitcoin",
		"ETH":   "ethereum",
		"USDT":  "ethereum",
		"BNB":   "bnb-chain",
		"USDC":  "ethereum",
		"XRP":   "ripple",
		"ADA":   "cardano",
		"MATIC": "polygon",
		"DOGE":  "dogecoin",
		"SOL":   "solana",
	}
	n, ok := networks[symbol]
	return n, ok
}
