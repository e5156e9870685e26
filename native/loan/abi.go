package loan

import "loanchain/core/vm"

// The two-argument setTokenPrice overload is exposed by go-ethereum as
// "setTokenPrice0".
const abiJSON = `[
 {"type":"receive","stateMutability":"payable"},
 {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"interestRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"collateralRatioBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"totalDebt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"tokenPrice","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"}],"outputs":[{"name":"tokenName","type":"bytes32"},{"name":"price","type":"uint256"}]},
 {"type":"function","name":"loans","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"loanAmount","type":"uint256"},{"name":"collateralAmount","type":"uint256"},{"name":"collateralAddress","type":"address"}]},
 {"type":"function","name":"lockedCollateral","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"setInterestRate","stateMutability":"nonpayable","inputs":[{"name":"rate","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"setTokenPrice","stateMutability":"nonpayable","inputs":[{"name":"tokenAddress","type":"address"},{"name":"tokenName","type":"bytes32"},{"name":"price","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"setTokenPrice","stateMutability":"nonpayable","inputs":[{"name":"tokenAddress","type":"address"},{"name":"price","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"setCollateralRatio","stateMutability":"nonpayable","inputs":[{"name":"bps","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"createLoan","stateMutability":"nonpayable","inputs":[{"name":"loanAmount","type":"uint256"},{"name":"collateralAmount","type":"uint256"},{"name":"collateralAddress","type":"address"}],"outputs":[]},
 {"type":"function","name":"payLoan","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"withdrawTokens","stateMutability":"nonpayable","inputs":[{"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"InterestRate","anonymous":false,"inputs":[{"name":"value","type":"uint256","indexed":false}]},
 {"type":"event","name":"TokenPrice","anonymous":false,"inputs":[{"name":"tokenAddress","type":"address","indexed":true},{"name":"tokenName","type":"bytes32","indexed":false},{"name":"price","type":"uint256","indexed":false}]},
 {"type":"event","name":"CollateralRatio","anonymous":false,"inputs":[{"name":"value","type":"uint256","indexed":false}]},
 {"type":"event","name":"NewLoan","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"loanAmount","type":"uint256","indexed":false},{"name":"collateralAddress","type":"address","indexed":false},{"name":"collateralAmount","type":"uint256","indexed":false}]},
 {"type":"event","name":"PaidLoan","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"paidAmount","type":"uint256","indexed":false},{"name":"loanClosed","type":"bool","indexed":false}]},
 {"type":"event","name":"Funded","anonymous":false,"inputs":[{"name":"sender","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
 {"type":"event","name":"Withdrawn","anonymous":false,"inputs":[{"name":"to","type":"address","indexed":true},{"name":"token","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]}
]`

// ABI is the public call surface of the loan contract.
var ABI = vm.MustParseABI(abiJSON)
