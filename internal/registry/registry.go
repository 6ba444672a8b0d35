// Package registry routes raw transactions to platform decoders.
package registry

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"loanledger/internal/model"
	"loanledger/internal/platform"
	"loanledger/internal/proxy"
)

// contractRouting maps known mainnet contract addresses to platforms.
// Lookups are against lowercased addresses.
var contractRouting = map[string]model.Platform{
	// Blur
	platform.BlurBlendProxyAddress:               model.PlatformBlur,
	platform.BlurPoolAddress:                     model.PlatformBlur,
	"0x000000000000ad05ccc4f10045630fb830b95127": model.PlatformBlur, // marketplace

	// Gondi multi-source loan versions
	platform.GondiV1Address:                      model.PlatformGondi,
	platform.GondiV2Address:                      model.PlatformGondi,
	platform.GondiV3Address:                      model.PlatformGondi,
	"0x59e0b87e3dcfb5d34c06c71c3fbf7f6b7d77a4ff": model.PlatformGondi, // MultiSourceLoan

	// Arcade v3
	"0x81b2f8fc75bab64a6b144aa6d2faa127b4fa7fd9": model.PlatformArcade, // LoanCore proxy
	"0x6ddb57101a17854109c3b9feb80ae19662ea950f": model.PlatformArcade, // LoanCore impl
	"0x89bc08ba00f135d608bc335f6b33d7a9abcc98af": model.PlatformArcade, // OriginationController
	"0xb39dab85fa05c381767ff992ccde4c94619993d4": model.PlatformArcade, // RepaymentController
	"0x349a026a43ffa8e2ab4c4e59fcaa93f87bd8ddee": model.PlatformArcade, // lender note
	"0x337104a4f06260ff327d6734c555a0f5d8f863aa": model.PlatformArcade, // borrower note
	platform.ArcadeOriginationAddress:            model.PlatformArcade,
	platform.ArcadeRepaymentAddress:              model.PlatformArcade,

	// NFTfi
	platform.NFTfiV1Address:          model.PlatformNFTfi,
	platform.NFTfiV2Address:          model.PlatformNFTfi,
	platform.NFTfiCoordinatorAddress: model.PlatformNFTfi,
	platform.NFTfiV2RedeployAddress:  model.PlatformNFTfi,

	// Zharta
	"0xb7c8c74ed765267b54f4c327f279d7e850725ef2": model.PlatformZharta, // loans interface
	platform.ZhartaLoansCoreAddress:              model.PlatformZharta,
	"0x6474ab1b56b47bc26ba8cb471d566b8cc528f308": model.PlatformZharta, // pool peripheral
	"0x35b8545ae12d89cd4997d5485e2e68c857df24a8": model.PlatformZharta, // vault peripheral
	platform.ZhartaWETHPoolAddress:               model.PlatformZharta,
	platform.ZhartaUSDCV2Address:                 model.PlatformZharta,

	// Generic surfaces that still produce decodable movement
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": model.PlatformGeneric, // WETH
	"0x0000000000000068f116a894984e2db1123eb395": model.PlatformGeneric, // Seaport 1.6
}

// functionSelectors maps the first four bytes of calldata to a
// platform when the to-address alone is not conclusive.
var functionSelectors = map[string]model.Platform{
	// WETH wrap/unwrap
	"0xd0e30db0": model.PlatformGeneric, // deposit()
	"0x2e1a7d4d": model.PlatformGeneric, // withdraw(uint256)

	// ERC-20
	"0xa9059cbb": model.PlatformGeneric, // transfer
	"0x23b872dd": model.PlatformGeneric, // transferFrom
	"0x095ea7b3": model.PlatformGeneric, // approve

	// Gnosis Safe
	"0x6a761202": model.PlatformGeneric, // execTransaction

	// NFT marketplaces
	"0xfb0f3ee1": model.PlatformGeneric, // Seaport fulfillBasicOrder
	"0xe7acab24": model.PlatformGeneric, // Seaport fulfillAvailableAdvancedOrders
	"0xab834bab": model.PlatformGeneric, // Wyvern atomicMatch_
	"0x0a0a5e48": model.PlatformGeneric, // execute

	// NFTfi direct loans
	"0x3b1d21a2": model.PlatformNFTfi, // initializeLoan
	"0x58e644b7": model.PlatformNFTfi, // beginLoan
	"0x6d5f9e56": model.PlatformNFTfi, // repayLoan
	"0x8c7a63ae": model.PlatformNFTfi, // payBackLoan
	"0x766df841": model.PlatformNFTfi, // liquidateOverdueLoan

	// Gondi refinanceFull, two deployed selectors
	"0x65e03b9c": model.PlatformGondi,
	"0xc09c4e7e": model.PlatformGondi,

	// Zharta
	"0x5a5cd02e": model.PlatformZharta, // reserveEth
	"0xc290d691": model.PlatformZharta, // pay

	// DEX swaps stay generic
	"0x38ed1739": model.PlatformGeneric,
	"0x7ff36ab5": model.PlatformGeneric,
	"0x18cbafe5": model.PlatformGeneric,
	"0xc04b8d59": model.PlatformGeneric,
	"0x414bf389": model.PlatformGeneric,
}

// probeOrder fixes the order in which decoders are asked CanDecode
// when no table matches.
var probeOrder = []model.Platform{
	model.PlatformBlur,
	model.PlatformArcade,
	model.PlatformNFTfi,
	model.PlatformGondi,
	model.PlatformZharta,
}

// Router resolves a receipt to the platform decoder responsible for
// it. The proxy resolver is optional; without it the proxy-aware
// routing step is skipped.
type Router struct {
	resolver *proxy.Resolver
	decoders map[model.Platform]platform.Decoder
	logger   *zap.Logger
}

// NewRouter builds a router with all platform decoders registered.
func NewRouter(resolver *proxy.Resolver, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	gondi, err := platform.NewGondiDecoder()
	if err != nil {
		return nil, err
	}
	blur, err := platform.NewBlurDecoder()
	if err != nil {
		return nil, err
	}
	arcade, err := platform.NewArcadeDecoder()
	if err != nil {
		return nil, err
	}

	decoders := map[model.Platform]platform.Decoder{
		model.PlatformGondi:   gondi,
		model.PlatformBlur:    blur,
		model.PlatformArcade:  arcade,
		model.PlatformNFTfi:   platform.NewNFTfiDecoder(),
		model.PlatformZharta:  platform.NewZhartaDecoder(),
		model.PlatformGeneric: platform.NewGenericDecoder(),
	}

	return &Router{
		resolver: resolver,
		decoders: decoders,
		logger:   logger,
	}, nil
}

// Decoder returns the decoder registered for a platform, falling back
// to the generic decoder for unknown platforms.
func (r *Router) Decoder(p model.Platform) platform.Decoder {
	if d, ok := r.decoders[p]; ok {
		return d
	}
	return r.decoders[model.PlatformGeneric]
}

// Route determines the platform for a receipt.
//
// Priority: direct to-address table, proxy-resolved to-address table,
// calldata selector table, log emitter table preferring a specific
// platform over GENERIC, then decoder probing in fixed order. Anything
// left is GENERIC.
func (r *Router) Route(ctx context.Context, receipt *model.Receipt) model.Platform {
	to := strings.ToLower(receipt.To)

	if p, ok := contractRouting[to]; ok {
		return p
	}

	if r.resolver != nil && common.IsHexAddress(to) {
		impl := r.resolver.Resolve(ctx, common.HexToAddress(to))
		resolved := strings.ToLower(impl.Hex())
		if resolved != to {
			if p, ok := contractRouting[resolved]; ok {
				r.logger.Debug("routed via proxy implementation",
					zap.String("proxy", to),
					zap.String("implementation", resolved),
					zap.String("platform", string(p)))
				return p
			}
		}
	}

	if selector := receipt.Selector(); selector != "" {
		if p, ok := functionSelectors[selector]; ok {
			return p
		}
	}

	genericSeen := false
	for _, log := range receipt.Logs {
		p, ok := contractRouting[strings.ToLower(log.Address)]
		if !ok {
			continue
		}
		if p == model.PlatformGeneric {
			genericSeen = true
			continue
		}
		return p
	}
	if genericSeen {
		return model.PlatformGeneric
	}

	for _, p := range probeOrder {
		if r.decoders[p].CanDecode(receipt) {
			return p
		}
	}

	return model.PlatformGeneric
}

// Decode routes the receipt and runs the selected decoder.
func (r *Router) Decode(ctx context.Context, receipt *model.Receipt) (model.Platform, []platform.RawEvent, []model.DecodeFailure) {
	p := r.Route(ctx, receipt)
	events, failures := r.Decoder(p).DecodeEvents(receipt)
	return p, events, failures
}
