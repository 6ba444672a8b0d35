package platform

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Gondi v1 and v3 share the tranche-based Loan layout. v2 uses the
// older source-based layout with no floor or protocolFee fields.

const gondiTrancheABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "offerId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Tranche[]", "name": "tranche", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "uint256", "name": "floor", "type": "uint256"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]},
        {"internalType": "uint256", "name": "protocolFee", "type": "uint256"}
      ]},
      {"indexed": false, "internalType": "address", "name": "lender", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "borrower", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanEmitted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "renegotiationId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "oldLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Tranche[]", "name": "tranche", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "uint256", "name": "floor", "type": "uint256"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]},
        {"internalType": "uint256", "name": "protocolFee", "type": "uint256"}
      ]},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanRefinanced",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Tranche[]", "name": "tranche", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "uint256", "name": "floor", "type": "uint256"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]},
        {"internalType": "uint256", "name": "protocolFee", "type": "uint256"}
      ]},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanRefinancedFromNewOffers",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Tranche[]", "name": "tranche", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "uint256", "name": "floor", "type": "uint256"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]},
        {"internalType": "uint256", "name": "protocolFee", "type": "uint256"}
      ]},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanExtended",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "totalRepayment", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanRepaid",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "LoanForeclosed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "LoanLiquidated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "liquidator", "type": "address"}
    ],
    "name": "LoanSentToLiquidator",
    "type": "event"
  }
]`

const gondiSourceABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "offerId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Source[]", "name": "source", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]}
      ]},
      {"indexed": false, "internalType": "address", "name": "lender", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "borrower", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanEmitted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "renegotiationId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "oldLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Source[]", "name": "source", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]}
      ]},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanRefinanced",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "struct Loan", "name": "loan", "type": "tuple", "components": [
        {"internalType": "address", "name": "borrower", "type": "address"},
        {"internalType": "uint256", "name": "nftCollateralTokenId", "type": "uint256"},
        {"internalType": "address", "name": "nftCollateralAddress", "type": "address"},
        {"internalType": "address", "name": "principalAddress", "type": "address"},
        {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "startTime", "type": "uint256"},
        {"internalType": "uint256", "name": "duration", "type": "uint256"},
        {"internalType": "struct Source[]", "name": "source", "type": "tuple[]", "components": [
          {"internalType": "uint256", "name": "loanId", "type": "uint256"},
          {"internalType": "address", "name": "lender", "type": "address"},
          {"internalType": "uint256", "name": "principalAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "accruedInterest", "type": "uint256"},
          {"internalType": "uint256", "name": "startTime", "type": "uint256"},
          {"internalType": "uint256", "name": "aprBps", "type": "uint256"}
        ]}
      ]},
      {"indexed": false, "internalType": "uint256", "name": "_extension", "type": "uint256"}
    ],
    "name": "LoanExtended",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "totalRepayment", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "LoanRepaid",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "LoanForeclosed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "LoanLiquidated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "liquidator", "type": "address"}
    ],
    "name": "LoanSentToLiquidator",
    "type": "event"
  }
]`

var (
	gondiTrancheABI     abi.ABI
	gondiTrancheABIOnce sync.Once
	gondiTrancheABIErr  error

	gondiSourceABI     abi.ABI
	gondiSourceABIOnce sync.Once
	gondiSourceABIErr  error
)

// GondiTrancheABI returns the parsed v1/v3 multi-source loan ABI.
func GondiTrancheABI() (abi.ABI, error) {
	gondiTrancheABIOnce.Do(func() {
		gondiTrancheABI, gondiTrancheABIErr = abi.JSON(strings.NewReader(gondiTrancheABIJSON))
	})
	return gondiTrancheABI, gondiTrancheABIErr
}

// GondiSourceABI returns the parsed v2 loan ABI.
func GondiSourceABI() (abi.ABI, error) {
	gondiSourceABIOnce.Do(func() {
		gondiSourceABI, gondiSourceABIErr = abi.JSON(strings.NewReader(gondiSourceABIJSON))
	})
	return gondiSourceABI, gondiSourceABIErr
}
